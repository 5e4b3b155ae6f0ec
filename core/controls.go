package orchestration

// SetAudioResponses turns reading replies aloud on or off. Turning it off
// also stops the reply being read.
func (o *Orchestrator) SetAudioResponses(enabled bool) {
	o.mu.Lock()
	changed := o.audioResponses != enabled
	o.audioResponses = enabled
	o.mu.Unlock()

	if !enabled {
		o.StopSpeaking()
	}
	if changed {
		o.callbacks.audioResponsesChanged(enabled)
	}
}

// RequestModeSwitch switches to mode when nothing would be lost. It returns
// false when the session has history; the caller should then ask the
// players and call ConfirmModeSwitch.
func (o *Orchestrator) RequestModeSwitch(mode Mode) bool {
	if o.Mode() == mode {
		return true
	}
	if o.hasHistory() {
		return false
	}
	o.ConfirmModeSwitch(mode)
	return true
}

// ConfirmModeSwitch switches to mode, wiping the transcript, the
// walkthrough and the pending action, abandoning the outstanding request
// and tearing down all audio.
func (o *Orchestrator) ConfirmModeSwitch(mode Mode) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.mode = mode
	o.pending = nil
	o.inFlight = false
	o.turnGeneration++
	cancelTurn := o.cancelTurn
	o.cancelTurn = nil
	o.mu.Unlock()

	if cancelTurn != nil {
		cancelTurn()
	}
	o.StopVoice()
	o.StopSpeaking()
	o.StopDictation()
	o.walkthrough.Reset()

	logger.Info("switched mode", "mode", string(mode))
	o.callbacks.stepChanged(o.walkthrough.Snapshot())
	o.publishStatus()
}

// SetRuleContext sets the game and house rules the assistant should follow.
// A live voice session is updated only when the rules actually changed.
func (o *Orchestrator) SetRuleContext(game, rules string) {
	o.mu.Lock()
	o.game = game
	o.rules = rules
	o.mu.Unlock()

	if o.voice == nil {
		return
	}
	session := o.voice.Session()
	if session == nil {
		return
	}

	o.mu.Lock()
	changed := o.pushedRules != rules
	o.pushedRules = rules
	o.mu.Unlock()
	if !changed {
		return
	}
	if err := session.UpdateContext(o.voiceConfig()); err != nil {
		logger.Warn("failed to update voice session rules", "error", err)
	}
}
