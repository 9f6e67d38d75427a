package engine

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/eutils"
	"github.com/ncbimcp/ncbimcp/internal/tools"
)

// Composite defaults.
const (
	DefaultPageSize       = 200
	DefaultCompositeLimit = 10
)

// searchAndFetch runs ESearch with history and then pages EFetch through
// the returned session. Pages are fetched in order and the run stops at the
// first failed page, keeping what was already retrieved.
func (d *Dispatcher) searchAndFetch(ctx context.Context, tool tools.Tool, args core.Params) (*core.Result, error) {
	limit, err := args.Int("retmax", DefaultCompositeLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: retmax must be positive", ErrInvalidArguments)
	}
	params, err := tool.WireParams(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	db := params["db"]
	term := params["term"]
	run := &compositeRun{
		dispatcher: d,
		outcome:    &core.CompositeOutcome{State: core.StateIdle, Query: term},
	}
	result := &core.Result{Tool: tool.Name, Composite: run.outcome}

	run.to(core.StateSearching)
	search := d.Executor.Execute(ctx, core.OutboundRequest{
		Operation: core.OperationSearch,
		Database:  db,
		Params: map[string]string{
			"db":         db,
			"term":       term,
			"usehistory": "y",
			"retmax":     "0",
			"retmode":    "json",
		},
	})
	run.outcome.Search = &search
	if !search.OK() {
		run.outcome.Message = "search failed: " + describeFailure(search)
		run.to(core.StateSearchFailed)
		return result, nil
	}

	found, err := eutils.DecodeSearch(search.Payload)
	if err != nil {
		search.Kind = core.OutcomeRemoteError
		search.Message = err.Error()
		run.outcome.Message = "search failed: " + err.Error()
		run.to(core.StateSearchFailed)
		return result, nil
	}
	run.outcome.Found = found.Count
	if found.Count == 0 {
		run.outcome.Message = "No results found for query: " + term
		run.to(core.StateCompleted)
		return result, nil
	}

	session, ok := found.Session(db)
	if !ok {
		search.Kind = core.OutcomeRemoteError
		search.Message = "search response carried no history session"
		run.outcome.Message = "search failed: " + search.Message
		run.to(core.StateSearchFailed)
		return result, nil
	}
	d.Sessions.Record(session)
	run.outcome.Session = &session
	run.to(core.StateSessionObtained)

	total := min(found.Count, limit)
	pageSize := d.pageSize()
	run.outcome.Total = total
	run.outcome.Planned = (total + pageSize - 1) / pageSize
	run.to(core.StateFetching)

	var payload bytes.Buffer
	for start := 0; start < total; start += pageSize {
		req := core.OutboundRequest{
			Operation: core.OperationFetch,
			Database:  db,
			Params: map[string]string{
				"db":       db,
				"retstart": strconv.Itoa(start),
				"retmax":   strconv.Itoa(min(pageSize, total-start)),
			},
			Session: &session,
		}
		for _, key := range []string{"rettype", "retmode"} {
			if value := params[key]; value != "" {
				req.Params[key] = value
			}
		}

		page := d.afterExecute(req, d.Executor.Execute(ctx, req))
		if !page.OK() {
			run.outcome.Failure = &page
			run.outcome.Message = fmt.Sprintf("fetched %d of %d pages; page %d failed: %s",
				len(run.outcome.Pages), run.outcome.Planned, len(run.outcome.Pages)+1, describeFailure(page))
			run.to(core.StatePartiallyFailed)
			break
		}
		run.outcome.Pages = append(run.outcome.Pages, page)
		payload.Write(page.Payload)
	}

	run.outcome.Payload = payload.Bytes()
	if run.outcome.State == core.StateFetching {
		run.outcome.Message = fmt.Sprintf("Search Results for: %s; total found: %d; returned: %d", term, found.Count, total)
		run.to(core.StateCompleted)
	}
	return result, nil
}

type compositeRun struct {
	dispatcher *Dispatcher
	outcome    *core.CompositeOutcome
}

func (r *compositeRun) to(next core.CompositeState) {
	current := r.outcome.State
	if !current.CanTransition(next) {
		r.dispatcher.logWarn("unexpected composite transition",
			zap.String("from", string(current)),
			zap.String("to", string(next)),
		)
	}
	r.dispatcher.logDebug("composite transition",
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.String("query", r.outcome.Query),
	)
	r.outcome.State = next
	if next.Terminal() {
		r.dispatcher.logDebug("composite finished",
			zap.String("state", string(next)),
			zap.Int("found", r.outcome.Found),
			zap.Int("pages", len(r.outcome.Pages)),
		)
	}
}

func describeFailure(outcome core.Outcome) string {
	switch {
	case outcome.Message != "":
		return outcome.Message
	case outcome.Reason != "":
		return outcome.Reason
	default:
		return string(outcome.Kind)
	}
}

func (d *Dispatcher) pageSize() int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	return DefaultPageSize
}
