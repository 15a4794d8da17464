package chaintest

import (
	"strings"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/layout"
)

// Account sizes including the 8-byte header, as allocated by the programs.
const (
	CounterSize        = 8 + 8
	RoundSize          = 8 + 8 + 32 + 9 + 33 + 9
	UserAccountSize    = 8 + 32 + (4 + 32) + 8 + 4 + 3*(4+32)
	UsernameRecordSize = 8 + 32 + (4 + 32) + 8

	maxUsernameHistory = 3
	maxUsernameLength  = 32
	minUsernameLength  = 2
)

// Program error codes.
const (
	codeInvalidStartSlot           = 6000
	codeRoundAlreadyActive         = 6001
	codeRoundNotYetActive          = 6002
	codeRoundAlreadyComplete       = 6003
	codeInvalidRoundActivationSlot = 6004

	codeUsernameTooLong           = 6000
	codeUsernameTooShort          = 6001
	codeUsernameInvalidCharacters = 6002
	codeUsernameAlreadyAssigned   = 6003
)

var handlers = map[string]func(c *ixContext) error{
	"counter.initialize":          counterInitialize,
	"counter.increment":           counterIncrement,
	"round.initialiseround":       roundInitialise,
	"round.activateround":         roundActivate,
	"round.completeround":         roundComplete,
	"username.initializeusername": usernameInitialize,
	"username.updateusername":     usernameUpdate,
}

// counter: initialize [user, counter, system], increment [counter, user]

func counterInitialize(c *ixContext) error {
	user := c.accounts[0]
	if err := c.create(1, "Counter", CounterSize, "counter", user); err != nil {
		return err
	}
	c.log("Counter initialised for %s", user)
	return c.store(1, layout.NewWriter().U64(0).Bytes())
}

func counterIncrement(c *ixContext) error {
	body, err := c.load(0, "Counter")
	if err != nil {
		return err
	}
	var count uint64
	if err := layout.Decode(body, layout.Field("count", &count, layout.U64)); err != nil {
		return programError(3003)
	}
	count++
	c.log("Counter incremented to %d for %s", count, c.accounts[1])
	return c.store(0, layout.NewWriter().U64(count).Bytes())
}

// round: initialise [round, authority, system](start_slot),
// activate [round, user], complete [round, authority]

type roundState struct {
	startSlot   uint64
	authority   chain.Address
	activatedAt *uint64
	activatedBy *chain.Address
	completedAt *uint64
}

func (s *roundState) steps() []layout.Step {
	return []layout.Step{
		layout.Field("start_slot", &s.startSlot, layout.U64),
		layout.Field("authority", &s.authority, layout.Address),
		layout.Field("activated_at", &s.activatedAt, layout.Option(layout.U64)),
		layout.Field("activated_by", &s.activatedBy, layout.Option(layout.Address)),
		layout.Field("completed_at", &s.completedAt, layout.Option(layout.U64)),
	}
}

func (s *roundState) encode() []byte {
	return layout.NewWriter().
		U64(s.startSlot).
		Address(s.authority).
		OptionU64(s.activatedAt).
		OptionAddress(s.activatedBy).
		OptionU64(s.completedAt).
		Bytes()
}

func loadRound(c *ixContext) (*roundState, error) {
	body, err := c.load(0, "Round")
	if err != nil {
		return nil, err
	}
	var s roundState
	if err := layout.Decode(body, s.steps()...); err != nil {
		return nil, programError(3003)
	}
	if err := c.checkSeeds(0, "round", s.authority); err != nil {
		return nil, err
	}
	return &s, nil
}

func roundInitialise(c *ixContext) error {
	startSlot, err := layout.U64(c.args)
	if err != nil {
		return programError(codeDidNotDeserialize)
	}
	authority := c.accounts[1]
	if err := c.create(0, "Round", RoundSize, "round", authority); err != nil {
		return err
	}
	if startSlot <= c.slot() {
		return programError(codeInvalidStartSlot)
	}
	c.log("Round %d initialised by %s", startSlot, authority)
	s := roundState{startSlot: startSlot, authority: authority}
	return c.store(0, s.encode())
}

func roundActivate(c *ixContext) error {
	s, err := loadRound(c)
	if err != nil {
		return err
	}
	if s.activatedAt != nil {
		return programError(codeRoundAlreadyActive)
	}
	now := c.slot()
	if now < s.startSlot {
		return programError(codeInvalidRoundActivationSlot)
	}
	user := c.accounts[1]
	s.activatedAt, s.activatedBy = &now, &user
	c.log("Round %d activated by %s at slot %d", s.startSlot, user, now)
	return c.store(0, s.encode())
}

func roundComplete(c *ixContext) error {
	s, err := loadRound(c)
	if err != nil {
		return err
	}
	if s.authority != c.accounts[1] {
		return programError(codeConstraintHasOne)
	}
	if s.activatedAt == nil {
		return programError(codeRoundNotYetActive)
	}
	if s.completedAt != nil {
		return programError(codeRoundAlreadyComplete)
	}
	now := c.slot()
	s.completedAt = &now
	c.log("Round %d marked as complete at slot %d", s.startSlot, now)
	return c.store(0, s.encode())
}

// username: initialize [authority, user_account, system](username),
// update [authority, user_account, username_record, system](username)

type userAccountState struct {
	authority   chain.Address
	username    string
	changeCount uint64
	history     []string
}

func (s *userAccountState) steps() []layout.Step {
	return []layout.Step{
		layout.Field("authority", &s.authority, layout.Address),
		layout.Field("username", &s.username, layout.String),
		layout.Field("change_count", &s.changeCount, layout.U64),
		layout.Field("username_recent_history", &s.history, layout.Vec(layout.String)),
	}
}

func (s *userAccountState) encode() []byte {
	return layout.NewWriter().
		Address(s.authority).
		String(s.username).
		U64(s.changeCount).
		Strings(s.history).
		Bytes()
}

func validUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) > maxUsernameLength {
		return "", programError(codeUsernameTooLong)
	}
	if len(name) < minUsernameLength {
		return "", programError(codeUsernameTooShort)
	}
	for _, r := range name {
		if !(r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-')) {
			return "", programError(codeUsernameInvalidCharacters)
		}
	}
	return name, nil
}

func usernameInitialize(c *ixContext) error {
	raw, err := layout.String(c.args)
	if err != nil {
		return programError(codeDidNotDeserialize)
	}
	authority := c.accounts[0]
	if err := c.create(1, "UserAccount", UserAccountSize, "user_account", authority); err != nil {
		return err
	}
	name, err := validUsername(raw)
	if err != nil {
		return err
	}
	c.log("Username %s assigned to %s", name, authority)
	s := userAccountState{authority: authority, username: name, history: []string{}}
	return c.store(1, s.encode())
}

func usernameUpdate(c *ixContext) error {
	raw, err := layout.String(c.args)
	if err != nil {
		return programError(codeDidNotDeserialize)
	}
	authority := c.accounts[0]
	body, err := c.load(1, "UserAccount")
	if err != nil {
		return err
	}
	var s userAccountState
	if err := layout.Decode(body, s.steps()...); err != nil {
		return programError(3003)
	}
	if s.authority != authority {
		return programError(codeConstraintHasOne)
	}
	if err := c.create(2, "UsernameRecord", UsernameRecordSize, "username_record", authority, layout.LE64(s.changeCount)); err != nil {
		return err
	}

	name, err := validUsername(raw)
	if err != nil {
		return err
	}
	if name == s.username {
		return programError(codeUsernameAlreadyAssigned)
	}

	record := layout.NewWriter().Address(authority).String(s.username).U64(s.changeCount).Bytes()
	if err := c.store(2, record); err != nil {
		return err
	}

	if len(s.history) >= maxUsernameHistory {
		s.history = s.history[1:]
	}
	s.history = append(s.history, s.username)
	s.username = name
	s.changeCount++
	c.log("Username %s assigned to %s", name, authority)
	return c.store(1, s.encode())
}
