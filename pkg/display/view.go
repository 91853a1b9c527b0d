package display

import (
	"time"

	"github.com/alim08/tradesite/pkg/format"
	"github.com/alim08/tradesite/pkg/models"
)

// QuoteView is one quote as the page renders it.
type QuoteView struct {
	models.MarketQuote
	PriceText    string `json:"priceText"`
	ChangeText   string `json:"changeText"`
	MovementText string `json:"movementText"`
	Up           bool   `json:"up"`
	Logo         Logo   `json:"logo"`
}

// View is the render model of a display at one moment.
type View struct {
	Name      string        `json:"view"`
	Status    FetchStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	ErrorKey  string        `json:"errorKey,omitempty"`
	Quotes    []QuoteView   `json:"quotes"`
	UpdatedAt time.Time     `json:"updatedAt,omitempty"`
	Seq       uint64        `json:"seq"`
	Interval  time.Duration `json:"-"`
}

// HasError reports whether the view should show its error state.
func (v View) HasError() bool { return v.Status == StatusError }

// Loading reports whether the first fetch is still pending.
func (v View) Loading() bool { return v.Status == StatusLoading }

// View returns the current render model.
func (d *Display) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewLocked()
}

// viewLocked builds the view; d.mu must be held.
func (d *Display) viewLocked() View {
	v := View{
		Name:      d.name,
		Status:    d.status,
		Error:     d.errMsg,
		ErrorKey:  d.errKey,
		Quotes:    make([]QuoteView, 0, len(d.snapshot)),
		UpdatedAt: d.updated,
		Seq:       d.seq,
		Interval:  d.interval,
	}
	for _, q := range d.snapshot {
		qv := QuoteView{
			MarketQuote:  q,
			PriceText:    format.Price(d.policy, q.Price),
			ChangeText:   format.Change(q.Change),
			MovementText: format.Movement(q.Change),
			Up:           q.Change >= 0,
		}
		if d.logos != nil {
			qv.Logo = d.logos.resolve(q.Symbol, q.Name)
		}
		v.Quotes = append(v.Quotes, qv)
	}
	return v
}
