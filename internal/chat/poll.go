package chat

// Poll is the single active poll of a room.
type Poll struct {
	Room     string
	Question string
	Options  []string
	Votes    []int
	Creator  string
}

type PollEngine struct {
	polls map[string]*Poll
}

func NewPollEngine() *PollEngine {
	return &PollEngine{polls: make(map[string]*Poll)}
}

// Create starts a poll in room, silently replacing any active one.
func (e *PollEngine) Create(room, question string, options []string, creator string) Poll {
	p := &Poll{
		Room:     room,
		Question: question,
		Options:  append([]string(nil), options...),
		Votes:    make([]int, len(options)),
		Creator:  creator,
	}
	e.polls[room] = p
	return p.clone()
}

// Vote adds one vote for option. Repeat voters are counted every time.
func (e *PollEngine) Vote(room string, option int) (Poll, error) {
	p, ok := e.polls[room]
	if !ok {
		return Poll{}, notFoundErr("no active poll in room %q", room)
	}
	if option < 0 || option >= len(p.Options) {
		return Poll{}, validationErr("option index %d out of range [0, %d)", option, len(p.Options))
	}
	p.Votes[option]++
	return p.clone(), nil
}

// End closes the poll of room. Only its creator may end it.
func (e *PollEngine) End(room, requester string) error {
	p, ok := e.polls[room]
	if !ok {
		return notFoundErr("no active poll in room %q", room)
	}
	if p.Creator != requester {
		return authorizationErr("only %s can end this poll", p.Creator)
	}
	delete(e.polls, room)
	return nil
}

func (e *PollEngine) Get(room string) (Poll, bool) {
	p, ok := e.polls[room]
	if !ok {
		return Poll{}, false
	}
	return p.clone(), true
}

func (e *PollEngine) Len() int { return len(e.polls) }

func (p *Poll) clone() Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.Votes = append([]int(nil), p.Votes...)
	return c
}
