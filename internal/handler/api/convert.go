package api

import (
	models "HisCollect/internal/domain/models"
	xhttp "HisCollect/pkg/http"
	"HisCollect/pkg/util"
)

func parseWindow(start, end string) (models.Window, []xhttp.ValidationError) {
	var errs []xhttp.ValidationError
	s, err := util.ParseDay(start)
	if err != nil {
		errs = append(errs, xhttp.ValidationError{Code: "ERR_DATE", Field: "start", Message: err.Error()})
	}
	e, err := util.ParseDay(end)
	if err != nil {
		errs = append(errs, xhttp.ValidationError{Code: "ERR_DATE", Field: "end", Message: err.Error()})
	}
	if errs != nil {
		return models.Window{}, errs
	}
	w := models.NewWindow(s, e)
	if err := w.Validate(); err != nil {
		return models.Window{}, []xhttp.ValidationError{{Code: "ERR_WINDOW", Field: "start", Message: err.Error()}}
	}
	return w, nil
}

// toCollectRequest resolves dates and fills directive defaults: enabled,
// the request window, and the category's canonical position as priority.
func toCollectRequest(req *models.CollectHTTPRequest) (models.CollectRequest, []xhttp.ValidationError) {
	w, verr := parseWindow(req.Start, req.End)
	if verr != nil {
		return models.CollectRequest{}, verr
	}
	out := models.CollectRequest{
		ID:        req.ID,
		Market:    models.Market(req.Market),
		Method:    models.Method(req.Method),
		Window:    w,
		StockIDs:  req.StockIDs,
		BrokerIDs: req.BrokerIDs,
	}
	if len(req.Frame) == 0 {
		return out, nil
	}

	out.Frame = make(map[models.Category]*models.CollectionDirective, len(req.Frame))
	for name, d := range req.Frame {
		cat := models.Category(name)
		dir := &models.CollectionDirective{
			Enabled:   true,
			Window:    w,
			StockIDs:  d.StockIDs,
			BrokerIDs: d.BrokerIDs,
			Base:      models.Base(d.Base),
			Limit:     d.Limit,
			Priority:  cat.Ordinal(),
		}
		if d.Enabled != nil {
			dir.Enabled = *d.Enabled
		}
		if d.Priority != nil {
			dir.Priority = *d.Priority
		}
		if d.Start != "" || d.End != "" {
			start, end := d.Start, d.End
			if start == "" {
				start = req.Start
			}
			if end == "" {
				end = req.End
			}
			dw, verr := parseWindow(start, end)
			if verr != nil {
				for i := range verr {
					verr[i].Field = name + "." + verr[i].Field
				}
				return models.CollectRequest{}, verr
			}
			dir.Window = dw
		}
		for _, k := range d.OrderKeys {
			dir.OrderKeys = append(dir.OrderKeys, models.OrderKey(k))
		}
		out.Frame[cat] = dir
	}
	return out, nil
}
