package services

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"roaming/internal/errs"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"
	"roaming/internal/workpool"
)

// pullParams builds the date_from/limit query of a pull run.
func pullParams(now time.Time, lookbackDays, limit int) url.Values {
	from := now.AddDate(0, 0, -lookbackDays)
	return url.Values{
		"date_from": {from.UTC().Format(time.RFC3339)},
		"limit":     {strconv.Itoa(limit)},
	}
}

// pullAll walks every page of module in server order and merges each item
// under mode. Item failures land in agg; a page fetch failure ends the walk
// and is returned.
func pullAll[T any](ctx context.Context, client *ocpi.Client, module string, params url.Values, mode workpool.Mode,
	agg *syncresult.Aggregator, idOf func(T) string, merge func(context.Context, T) error) error {
	p := ocpi.NewPager[T](client, module, params)
	for p.Next(ctx) {
		page := p.Page()
		_ = workpool.Run(ctx, mode, page.Items, func(ctx context.Context, item T) error {
			if err := merge(ctx, item); err != nil {
				agg.RecordFailure(idOf(item), failureLine(module, idOf(item), err))
				return nil
			}
			agg.RecordSuccess()
			return nil
		})
	}
	if err := p.Err(); err != nil {
		return errs.Wrap(errs.CodeOf(err), "fetch "+module+" page", err)
	}
	return nil
}

func failureLine(kind, id string, err error) string {
	if id == "" {
		id = "<no id>"
	}
	return kind + " " + id + ": " + err.Error()
}
