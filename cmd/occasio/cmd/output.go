package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/occasio/occasio/booking"
	"github.com/occasio/occasio/config"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// rows is a table rendering of a result: a header line and the cells below it.
type rows struct {
	headers []string
	cells   [][]string
}

func (r *rows) add(cells ...string) { r.cells = append(r.cells, cells) }

// render writes v in format. tabulate is only called for table output.
func render(w io.Writer, format string, v any, tabulate func() rows) error {
	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		r := tabulate()
		if len(r.cells) == 0 {
			_, err := fmt.Fprintln(w, "No results.")
			return err
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(r.headers...).
			Rows(r.cells...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		_, err := fmt.Fprintln(w, t.Render())
		return err
	}
}

func (a *app) render(v any, tabulate func() rows) error {
	return render(a.out, a.cfg.Output, v, tabulate)
}

// keyValues is a two-column table for a single record.
func keyValues(pairs ...string) rows {
	r := rows{headers: []string{"Field", "Value"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.add(pairs[i], pairs[i+1])
	}
	return r
}

func itoa(n int) string { return strconv.Itoa(n) }

func money(m booking.Money) string { return "₹" + m.String() }

// ago renders t relative to now, or "-" for the zero time.
func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func bookingRows(list []booking.Booking) rows {
	r := rows{headers: []string{"ID", "Event", "Tickets", "Total", "Status", "Purpose", "Booked"}}
	for _, b := range list {
		r.add(itoa(b.ID), itoa(b.Event), itoa(b.NumTickets), money(b.TotalPrice), b.Status, b.Purpose, ago(b.BookingDate))
	}
	return r
}

func venueBookingRows(list []booking.VenueBooking) rows {
	r := rows{headers: []string{"ID", "Venue", "Date", "Total", "Status", "Purpose", "Booked"}}
	for _, vb := range list {
		r.add(itoa(vb.ID), vb.VenueName, vb.EventDate, money(vb.TotalPrice), vb.Status, vb.Purpose, ago(vb.BookingDate))
	}
	return r
}

func eventRows(list []booking.Event) rows {
	r := rows{headers: []string{"ID", "Title", "Date", "Time", "Venue", "Capacity", "Price"}}
	for _, e := range list {
		r.add(itoa(e.ID), e.Title, e.Date, e.Time, itoa(e.Venue), itoa(e.Capacity), money(e.Price))
	}
	return r
}

func venueRows(list []booking.Venue) rows {
	r := rows{headers: []string{"ID", "Name", "Location", "Capacity", "Price"}}
	for _, v := range list {
		r.add(itoa(v.ID), v.Name, v.Location, itoa(v.Capacity), money(v.Price))
	}
	return r
}

func reviewRows(list []booking.Review) rows {
	r := rows{headers: []string{"ID", "Event", "Rating", "Comment", "Posted"}}
	for _, rv := range list {
		r.add(itoa(rv.ID), itoa(rv.Event), itoa(rv.Rating), rv.Comment, ago(rv.CreatedAt))
	}
	return r
}

func invoiceRows(list []booking.Invoice) rows {
	r := rows{headers: []string{"Number", "Kind", "Description", "Amount", "Issued"}}
	for _, inv := range list {
		r.add(inv.Number, string(inv.Kind), inv.Description, money(inv.Amount), ago(inv.IssuedAt))
	}
	return r
}

func paymentRows(list []booking.Payment) rows {
	r := rows{headers: []string{"Reference", "Kind", "Booking", "Amount", "Status", "Paid"}}
	for _, p := range list {
		r.add(p.Reference, string(p.Kind), itoa(p.BookingID), money(p.Amount), p.Status, ago(p.PaidAt))
	}
	return r
}

func profileRows(p booking.Profile) rows {
	return keyValues(
		"ID", itoa(p.ID),
		"Username", p.Username,
		"Email", p.Email,
		"Phone", p.Phone,
		"Role", p.Role,
	)
}
