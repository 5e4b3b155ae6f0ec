package actions

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindAddHouseRule      Kind = "add_house_rule"
	KindRemoveHouseRule   Kind = "remove_house_rule"
	KindCreateTournament  Kind = "create_tournament"
	KindRecordMatchResult Kind = "record_match_result"
	KindAddFriend         Kind = "add_friend"
)

func defaultDefinitions() []definition {
	return []definition{
		{
			kind:        KindAddHouseRule,
			description: "Save a house rule the group plays with for a game",
			newParams:   func() params { return &AddHouseRuleParams{} },
		},
		{
			kind:        KindRemoveHouseRule,
			description: "Remove a saved house rule from a game",
			newParams:   func() params { return &RemoveHouseRuleParams{} },
		},
		{
			kind:        KindCreateTournament,
			description: "Create a tournament for a game with the given players",
			newParams:   func() params { return &CreateTournamentParams{} },
		},
		{
			kind:        KindRecordMatchResult,
			description: "Record who won a tournament match",
			newParams:   func() params { return &RecordMatchResultParams{} },
		},
		{
			kind:        KindAddFriend,
			description: "Send a friend request to another player",
			newParams:   func() params { return &AddFriendParams{} },
		},
	}
}

type AddHouseRuleParams struct {
	Game string `json:"game" jsonschema:"title=Game,description=Name of the game the rule applies to"`
	Rule string `json:"rule" jsonschema:"title=Rule,description=The house rule in one sentence"`
}

func (p *AddHouseRuleParams) validate() error {
	return requireFields(field{"game", p.Game}, field{"rule", p.Rule})
}

func (p *AddHouseRuleParams) confirmation() string {
	return fmt.Sprintf("Add the house rule %q to %s?", p.Rule, p.Game)
}

type RemoveHouseRuleParams struct {
	Game   string `json:"game" jsonschema:"title=Game,description=Name of the game the rule applies to"`
	RuleID string `json:"ruleId" jsonschema:"title=Rule ID,description=Identifier of the saved rule"`
}

func (p *RemoveHouseRuleParams) validate() error {
	return requireFields(field{"game", p.Game}, field{"ruleId", p.RuleID})
}

func (p *RemoveHouseRuleParams) confirmation() string {
	return fmt.Sprintf("Remove that house rule from %s?", p.Game)
}

type CreateTournamentParams struct {
	Name    string   `json:"name" jsonschema:"title=Name,description=Tournament name"`
	Game    string   `json:"game" jsonschema:"title=Game,description=Game the tournament is played in"`
	Players []string `json:"players,omitempty" jsonschema:"title=Players,description=Display names of the participants"`
}

func (p *CreateTournamentParams) validate() error {
	return requireFields(field{"name", p.Name}, field{"game", p.Game})
}

func (p *CreateTournamentParams) confirmation() string {
	if len(p.Players) == 0 {
		return fmt.Sprintf("Create the %s tournament %q?", p.Game, p.Name)
	}
	return fmt.Sprintf("Create the %s tournament %q for %s?", p.Game, p.Name, strings.Join(p.Players, ", "))
}

type RecordMatchResultParams struct {
	TournamentID string `json:"tournamentId" jsonschema:"title=Tournament ID"`
	MatchID      string `json:"matchId" jsonschema:"title=Match ID"`
	Winner       string `json:"winner" jsonschema:"title=Winner,description=Display name of the winner"`
}

func (p *RecordMatchResultParams) validate() error {
	return requireFields(field{"tournamentId", p.TournamentID}, field{"matchId", p.MatchID}, field{"winner", p.Winner})
}

func (p *RecordMatchResultParams) confirmation() string {
	return fmt.Sprintf("Record %s as the winner of this match?", p.Winner)
}

type AddFriendParams struct {
	Username string `json:"username" jsonschema:"title=Username"`
}

func (p *AddFriendParams) validate() error {
	return requireFields(field{"username", p.Username})
}

func (p *AddFriendParams) confirmation() string {
	return fmt.Sprintf("Send a friend request to %s?", p.Username)
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	var errs []error
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	return errors.Join(errs...)
}
