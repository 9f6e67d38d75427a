package core

import "encoding/json"

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRemoteError      OutcomeKind = "remote_error"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	// OutcomeRateLimited is consumed by the executor and never returned to callers.
	OutcomeRateLimited    OutcomeKind = "rate_limit_exceeded"
	OutcomeSessionExpired OutcomeKind = "session_expired"
)

// Outcome is the classified result of executing one OutboundRequest.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Operation   Operation   `json:"operation"`
	RequestID   string      `json:"request_id,omitempty"`
	Payload     []byte      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	HTTPStatus  int         `json:"http_status,omitempty"`
	Message     string      `json:"message,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Attempts    int         `json:"attempts"`
	Exhausted   bool        `json:"exhausted,omitempty"`
	Session     *Session    `json:"session,omitempty"`
	FromCache   bool        `json:"from_cache,omitempty"`
}

// OK reports whether the outcome carries a payload.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Text returns the payload as a string.
func (o Outcome) Text() string {
	return string(o.Payload)
}

// MarshalJSON includes the payload as text alongside the metadata.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type alias Outcome
	return json.Marshal(struct {
		alias
		Payload string `json:"payload,omitempty"`
	}{alias: alias(o), Payload: string(o.Payload)})
}

// CompositeState is a step of the search-then-fetch state machine.
type CompositeState string

const (
	StateIdle            CompositeState = "idle"
	StateSearching       CompositeState = "searching"
	StateSearchFailed    CompositeState = "search_failed"
	StateSessionObtained CompositeState = "session_obtained"
	StateFetching        CompositeState = "fetching"
	StateCompleted       CompositeState = "completed"
	StatePartiallyFailed CompositeState = "partially_failed"
)

// Terminal reports whether no further transition is possible.
func (s CompositeState) Terminal() bool {
	switch s {
	case StateCompleted, StateSearchFailed, StatePartiallyFailed:
		return true
	default:
		return false
	}
}

var compositeTransitions = map[CompositeState][]CompositeState{
	StateIdle:            {StateSearching},
	StateSearching:       {StateSessionObtained, StateSearchFailed, StateCompleted},
	StateSessionObtained: {StateFetching},
	StateFetching:        {StateCompleted, StatePartiallyFailed},
}

// CanTransition reports whether next may follow s.
func (s CompositeState) CanTransition(next CompositeState) bool {
	for _, allowed := range compositeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CompositeOutcome reports a search-then-fetch run.
type CompositeOutcome struct {
	State   CompositeState `json:"state"`
	Query   string         `json:"query,omitempty"`
	Search  *Outcome       `json:"search,omitempty"`
	Session *Session       `json:"session,omitempty"`
	Found   int            `json:"found"`
	Planned int            `json:"planned_pages"`
	Total   int            `json:"total_records"`
	Pages   []Outcome      `json:"pages,omitempty"`
	Failure *Outcome       `json:"failure,omitempty"`
	Payload []byte         `json:"-"`
	Message string         `json:"message,omitempty"`
}

// ResultKind is the externally visible classification of a tool invocation.
type ResultKind string

const (
	ResultSuccess           ResultKind = "success"
	ResultRemoteError       ResultKind = "remote_error"
	ResultTransientFailure  ResultKind = "transient_failure"
	ResultSessionExpired    ResultKind = "session_expired"
	ResultPartialCompletion ResultKind = "partial_completion"
)

// Result is returned by the dispatcher for every tool invocation.
type Result struct {
	Tool      string            `json:"tool"`
	Outcome   *Outcome          `json:"outcome,omitempty"`
	Composite *CompositeOutcome `json:"composite,omitempty"`
	Local     map[string]any    `json:"local,omitempty"`
}

// Kind classifies the result for the tool boundary.
func (r *Result) Kind() ResultKind {
	if r == nil {
		return ResultTransientFailure
	}
	if r.Composite != nil {
		switch r.Composite.State {
		case StateCompleted:
			return ResultSuccess
		case StatePartiallyFailed:
			return ResultPartialCompletion
		case StateSearchFailed:
			if r.Composite.Search != nil {
				return outcomeResultKind(*r.Composite.Search)
			}
		}
		return ResultTransientFailure
	}
	if r.Outcome != nil {
		return outcomeResultKind(*r.Outcome)
	}
	return ResultSuccess
}

// Payload returns the primary body of the result.
func (r *Result) Payload() []byte {
	if r == nil {
		return nil
	}
	if r.Composite != nil {
		return r.Composite.Payload
	}
	if r.Outcome != nil {
		return r.Outcome.Payload
	}
	if r.Local != nil {
		data, err := json.MarshalIndent(r.Local, "", "  ")
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

func outcomeResultKind(o Outcome) ResultKind {
	switch o.Kind {
	case OutcomeSuccess:
		return ResultSuccess
	case OutcomeRemoteError:
		return ResultRemoteError
	case OutcomeSessionExpired:
		return ResultSessionExpired
	default:
		return ResultTransientFailure
	}
}
