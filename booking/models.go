package booking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Money is an amount in paise. The backend sends decimals with two places,
// either as strings ("50000.00") or as numbers.
type Money int64

// ParseMoney parses a decimal amount with at most two fractional digits.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	m := Money(w*100 + f)
	if neg {
		m = -m
	}
	return m, nil
}

func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount must be a string or number: %w", err)
		}
		s = n.String()
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalYAML renders the amount as a decimal string.
func (m Money) MarshalYAML() (any, error) {
	return m.String(), nil
}

// Venue is a bookable venue.
type Venue struct {
	ID          int       `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Location    string    `json:"location" yaml:"location"`
	Capacity    int       `json:"capacity" yaml:"capacity"`
	Price       Money     `json:"price" yaml:"price"`
	Description string    `json:"description" yaml:"description"`
	CreatedBy   int       `json:"created_by" yaml:"created_by"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Event is a ticketed event at a venue.
type Event struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Date        string `json:"date" yaml:"date"`
	Time        string `json:"time" yaml:"time"`
	Venue       int    `json:"venue" yaml:"venue"`
	CreatedBy   int    `json:"created_by" yaml:"created_by"`
	Capacity    int    `json:"capacity" yaml:"capacity"`
	Price       Money  `json:"price" yaml:"price"`
}

// Booking is a ticket booking for an event.
type Booking struct {
	ID          int       `json:"id" yaml:"id"`
	User        int       `json:"user" yaml:"user"`
	Event       int       `json:"event" yaml:"event"`
	NumTickets  int       `json:"num_tickets" yaml:"num_tickets"`
	BookingDate time.Time `json:"booking_date" yaml:"booking_date"`
	TotalPrice  Money     `json:"total_price" yaml:"total_price"`
	Status      string    `json:"status" yaml:"status"`
	Purpose     string    `json:"purpose" yaml:"purpose"`
}

// BookingRequest creates a Booking. NumTickets defaults to 1 server-side.
type BookingRequest struct {
	Event      int    `json:"event"`
	NumTickets int    `json:"num_tickets,omitempty"`
	Purpose    string `json:"purpose"`
}

// VenueBooking reserves a whole venue for one date.
type VenueBooking struct {
	ID                 int       `json:"id" yaml:"id"`
	User               int       `json:"user" yaml:"user"`
	Venue              int       `json:"venue" yaml:"venue"`
	VenueName          string    `json:"venue_name" yaml:"venue_name"`
	VenuePrice         Money     `json:"venue_price" yaml:"venue_price"`
	EventDate          string    `json:"event_date" yaml:"event_date"`
	Purpose            string    `json:"purpose" yaml:"purpose"`
	CustomRequirements string    `json:"custom_requirements" yaml:"custom_requirements,omitempty"`
	BookingDate        time.Time `json:"booking_date" yaml:"booking_date"`
	TotalPrice         Money     `json:"total_price" yaml:"total_price"`
	Status             string    `json:"status" yaml:"status"`
}

// VenueBookingRequest creates a VenueBooking. EventDate is YYYY-MM-DD.
type VenueBookingRequest struct {
	Venue              int    `json:"venue"`
	EventDate          string `json:"event_date"`
	Purpose            string `json:"purpose"`
	CustomRequirements string `json:"custom_requirements,omitempty"`
}

// Review is feedback left for an event.
type Review struct {
	ID        int       `json:"id" yaml:"id"`
	User      int       `json:"user" yaml:"user"`
	Event     int       `json:"event" yaml:"event"`
	Rating    int       `json:"rating" yaml:"rating"`
	Comment   string    `json:"comment" yaml:"comment"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ReviewRequest creates a Review. Rating is 1 to 5.
type ReviewRequest struct {
	Event   int    `json:"event"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Profile is the account shown on the settings page.
type Profile struct {
	ID       int    `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Phone    string `json:"phone" yaml:"phone"`
	Role     string `json:"role" yaml:"role"`
}

// ProfileUpdate changes the fields that are set.
type ProfileUpdate struct {
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Kind says which resource an invoice or payment was derived from.
type Kind string

const (
	KindEvent Kind = "event"
	KindVenue Kind = "venue"
)

// Invoice is issued for every confirmed booking.
type Invoice struct {
	Number      string    `json:"number" yaml:"number"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	BookingID   int       `json:"booking_id" yaml:"booking_id"`
	Description string    `json:"description" yaml:"description"`
	Amount      Money     `json:"amount" yaml:"amount"`
	IssuedAt    time.Time `json:"issued_at" yaml:"issued_at"`
}

// Payment records the amount settled for a confirmed booking.
type Payment struct {
	Reference string    `json:"reference" yaml:"reference"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	BookingID int       `json:"booking_id" yaml:"booking_id"`
	Amount    Money     `json:"amount" yaml:"amount"`
	PaidAt    time.Time `json:"paid_at" yaml:"paid_at"`
	Status    string    `json:"status" yaml:"status"`
}

// Dashboard aggregates everything the landing page shows.
type Dashboard struct {
	Profile       Profile        `json:"profile" yaml:"profile"`
	Bookings      []Booking      `json:"bookings" yaml:"bookings"`
	VenueBookings []VenueBooking `json:"venue_bookings" yaml:"venue_bookings"`
	Events        []Event        `json:"events" yaml:"events"`
	Invoices      []Invoice      `json:"invoices" yaml:"invoices"`
	TotalSpent    Money          `json:"total_spent" yaml:"total_spent"`
	Upcoming      int            `json:"upcoming" yaml:"upcoming"`
}
