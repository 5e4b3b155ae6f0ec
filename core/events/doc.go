// Package events defines the typed events a live voice session emits.
//
// Event kinds are grouped by namespace:
//
//   - voice_user.*
//   - voice_assistant.*
//   - voice_turn.*
//   - voice_session.*
//
// Within one turn a session emits, in order: zero or more
// UserTranscriptPartial, one UserTranscriptFinal, zero or more
// AssistantTranscriptDelta, exactly one AssistantTranscriptDone and exactly
// one TurnDone. VoiceError is emitted at most once, after which the session
// closes its event stream.
//
// voice_user events
//
//   - UserSpeechStarted (voice_user.speech_started): the remote side detected
//     the user starting to talk.
//   - UserTranscriptPartial (voice_user.transcript_partial): mutable snapshot
//     of what the user has said so far.
//   - UserTranscriptFinal (voice_user.transcript_final): terminal transcript
//     of the user utterance.
//
// voice_assistant events
//
//   - AssistantTranscriptDelta (voice_assistant.transcript_delta): append-only
//     piece of the spoken assistant reply.
//   - AssistantTranscriptDone (voice_assistant.transcript_done): full text of
//     the spoken reply.
//
// voice_turn events
//
//   - TurnDone (voice_turn.done): the assistant finished its response.
//
// voice_session events
//
//   - VoiceError (voice_session.error): the session failed and is closing.
package events
