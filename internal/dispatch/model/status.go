package model

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusProcessing  Status = "PROCESSING"
	StatusAccepted    Status = "ACCEPTED"
	StatusWrongAnswer Status = "WRONG_ANSWER"
	StatusFailed      Status = "FAILED"
)

// statusRank orders statuses so transitions can only move forward.
var statusRank = map[Status]int{
	StatusPending:     0,
	StatusProcessing:  1,
	StatusAccepted:    2,
	StatusWrongAnswer: 2,
	StatusFailed:      2,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return statusRank[s] == 2
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is a strictly
// forward transition. Terminal states accept nothing.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// StatusMapping translates a remote execution status code into a local
// submission status. Codes absent from the table fold into the default.
type StatusMapping struct {
	table     map[int]Status
	defaultTo Status
}

// DefaultStatusMapping returns the v1 mapping: remote code 3 is accepted,
// every other code collapses into WRONG_ANSWER.
func DefaultStatusMapping() StatusMapping {
	return StatusMapping{
		table:     map[int]Status{3: StatusAccepted},
		defaultTo: StatusWrongAnswer,
	}
}

// NewStatusMapping builds a mapping from an explicit table.
func NewStatusMapping(table map[int]Status, defaultTo Status) StatusMapping {
	copied := make(map[int]Status, len(table))
	for code, status := range table {
		copied[code] = status
	}
	return StatusMapping{table: copied, defaultTo: defaultTo}
}

// Map resolves a remote status code to a local status.
func (m StatusMapping) Map(code int) Status {
	if status, ok := m.table[code]; ok {
		return status
	}
	return m.defaultTo
}
