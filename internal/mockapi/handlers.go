package mockapi

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func parsePrice(p string) float64 {
	v, _ := strconv.ParseFloat(p, 64)
	return v
}

// ListVenues handles GET /api/venues/.
func (s *Server) ListVenues(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := slices.Clone(s.venues)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// GetVenue handles GET /api/venues/{id}/.
func (s *Server) GetVenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.venueByID(id); ok {
		writeJSON(w, http.StatusOK, v)
		return
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// ListEvents handles GET /api/events/.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := slices.Clone(s.events)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// GetEvent handles GET /api/events/{id}/.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.eventByID(id); ok {
		writeJSON(w, http.StatusOK, e)
		return
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// GetUser handles GET /api/users/{id}/. Non-staff callers may only read
// themselves.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())
	if !caller.staff && caller.ID != id {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	s.mu.Lock()
	acct, found := s.accounts[id]
	var user User
	if found {
		user = acct.User
	}
	s.mu.Unlock()
	if !found {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser handles PATCH /api/users/{id}/ for the email and phone fields.
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())
	if !caller.staff && caller.ID != id {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	req, ok := decodeJSON[userPatch](w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, found := s.accounts[id]
	if !found {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if req.Email != nil {
		acct.Email = *req.Email
	}
	if req.Phone != nil {
		acct.Phone = *req.Phone
	}
	writeJSON(w, http.StatusOK, acct.User)
}

// ListBookings handles GET /api/bookings/. Staff see every booking.
func (s *Server) ListBookings(w http.ResponseWriter, r *http.Request) {
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	out := []Booking{}
	for _, b := range s.bookings {
		if caller.staff || b.User == caller.ID {
			out = append(out, b)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// CreateBooking handles POST /api/bookings/. The total price is the event
// price times the ticket count.
func (s *Server) CreateBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[bookingRequest](w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())

	fields := map[string][]string{}
	if req.Purpose == "" {
		fields["purpose"] = []string{"Purpose is required."}
	}
	if req.NumTickets == 0 {
		req.NumTickets = 1
	}
	if req.NumTickets < 0 {
		fields["num_tickets"] = []string{"Ensure this value is greater than or equal to 0."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	event, found := s.eventByID(req.Event)
	if !found {
		fields["event"] = []string{"Invalid pk \"" + strconv.Itoa(req.Event) + "\" - object does not exist."}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	s.nextID++
	b := Booking{
		ID:          s.nextID,
		User:        caller.ID,
		Event:       event.ID,
		NumTickets:  req.NumTickets,
		BookingDate: s.now().UTC(),
		TotalPrice:  money(parsePrice(event.Price) * float64(req.NumTickets)),
		Status:      "pending",
		Purpose:     req.Purpose,
	}
	s.bookings = append(s.bookings, b)
	writeJSON(w, http.StatusCreated, b)
}

// GetBooking handles GET /api/bookings/{id}/.
func (s *Server) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == id && (caller.staff || b.User == caller.ID) {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// UpdateBooking handles PATCH /api/bookings/{id}/ for status changes.
func (s *Server) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[statusPatch](w, r)
	if !ok {
		return
	}
	if !validStatus(req.Status) {
		writeFieldErrors(w, map[string][]string{"status": {"\"" + req.Status + "\" is not a valid choice."}})
		return
	}
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		b := &s.bookings[i]
		if b.ID == id && (caller.staff || b.User == caller.ID) {
			b.Status = req.Status
			writeJSON(w, http.StatusOK, *b)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// ListVenueBookings handles GET /api/venue-bookings/.
func (s *Server) ListVenueBookings(w http.ResponseWriter, r *http.Request) {
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	out := []VenueBooking{}
	for _, vb := range s.venueBookings {
		if caller.staff || vb.User == caller.ID {
			out = append(out, vb)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// CreateVenueBooking handles POST /api/venue-bookings/. A venue can hold one
// pending or confirmed booking per date.
func (s *Server) CreateVenueBooking(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[venueBookingRequest](w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())

	fields := map[string][]string{}
	if req.Purpose == "" {
		fields["purpose"] = []string{"Purpose is required."}
	}
	date, err := time.Parse(dateLayout, req.EventDate)
	switch {
	case err != nil:
		fields["event_date"] = []string{"Date has wrong format. Use one of these formats instead: YYYY-MM-DD."}
	case date.Before(truncateDay(s.now())):
		fields["event_date"] = []string{"Event date cannot be in the past."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	venue, found := s.venueByID(req.Venue)
	if !found {
		fields["venue"] = []string{"Invalid pk \"" + strconv.Itoa(req.Venue) + "\" - object does not exist."}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	for _, vb := range s.venueBookings {
		if vb.Venue == venue.ID && vb.EventDate == req.EventDate && vb.Status != "cancelled" {
			writeFieldErrors(w, map[string][]string{
				"non_field_errors": {"This venue is already booked for the selected date."},
			})
			return
		}
	}

	s.nextID++
	vb := VenueBooking{
		ID:                 s.nextID,
		User:               caller.ID,
		Venue:              venue.ID,
		VenueName:          venue.Name,
		VenuePrice:         venue.Price,
		EventDate:          req.EventDate,
		Purpose:            req.Purpose,
		CustomRequirements: req.CustomRequirements,
		BookingDate:        s.now().UTC(),
		TotalPrice:         venue.Price,
		Status:             "pending",
	}
	s.venueBookings = append(s.venueBookings, vb)
	writeJSON(w, http.StatusCreated, vb)
}

// GetVenueBooking handles GET /api/venue-bookings/{id}/.
func (s *Server) GetVenueBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vb := range s.venueBookings {
		if vb.ID == id && (caller.staff || vb.User == caller.ID) {
			writeJSON(w, http.StatusOK, vb)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// UpdateVenueBooking handles PATCH /api/venue-bookings/{id}/ for status
// changes.
func (s *Server) UpdateVenueBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[statusPatch](w, r)
	if !ok {
		return
	}
	if !validStatus(req.Status) {
		writeFieldErrors(w, map[string][]string{"status": {"\"" + req.Status + "\" is not a valid choice."}})
		return
	}
	caller := accountFromContext(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.venueBookings {
		vb := &s.venueBookings[i]
		if vb.ID == id && (caller.staff || vb.User == caller.ID) {
			vb.Status = req.Status
			writeJSON(w, http.StatusOK, *vb)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

// ListFeedback handles GET /api/feedback/.
func (s *Server) ListFeedback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := slices.Clone(s.feedback)
	s.mu.Unlock()
	if out == nil {
		out = []Feedback{}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateFeedback handles POST /api/feedback/.
func (s *Server) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[feedbackRequest](w, r)
	if !ok {
		return
	}
	caller := accountFromContext(r.Context())
	fields := map[string][]string{}
	if req.Rating < 1 || req.Rating > 5 {
		fields["rating"] = []string{"Rating must be between 1 and 5."}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.eventByID(req.Event); !found {
		fields["event"] = []string{"Invalid pk \"" + strconv.Itoa(req.Event) + "\" - object does not exist."}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	s.nextID++
	f := Feedback{
		ID:        s.nextID,
		User:      caller.ID,
		Event:     req.Event,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now().UTC(),
	}
	s.feedback = append(s.feedback, f)
	writeJSON(w, http.StatusCreated, f)
}

// SetBookingStatus changes a booking's status directly, as an administrator
// confirming it would.
func (s *Server) SetBookingStatus(id int, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if s.bookings[i].ID == id {
			s.bookings[i].Status = status
			return true
		}
	}
	return false
}

// SetVenueBookingStatus changes a venue booking's status directly.
func (s *Server) SetVenueBookingStatus(id int, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.venueBookings {
		if s.venueBookings[i].ID == id {
			s.venueBookings[i].Status = status
			return true
		}
	}
	return false
}

// Venues returns the seeded venues.
func (s *Server) Venues() []Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.venues)
}

// Events returns the seeded events.
func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// venueByID and eventByID expect s.mu to be held.
func (s *Server) venueByID(id int) (Venue, bool) {
	for _, v := range s.venues {
		if v.ID == id {
			return v, true
		}
	}
	return Venue{}, false
}

func (s *Server) eventByID(id int) (Event, bool) {
	for _, e := range s.events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

func validStatus(status string) bool {
	switch status {
	case "pending", "confirmed", "cancelled":
		return true
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
