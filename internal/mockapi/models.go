package mockapi

import "time"

// User is the backend's public user representation.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type account struct {
	User
	passwordHash []byte
	staff        bool
}

// Venue is a bookable venue.
type Venue struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity"`
	Price       string    `json:"price"`
	Description string    `json:"description"`
	CreatedBy   int       `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Event is a ticketed event held at a venue.
type Event struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Venue       int    `json:"venue"`
	CreatedBy   int    `json:"created_by"`
	Capacity    int    `json:"capacity"`
	Price       string `json:"price"`
}

// Booking is a ticket booking for an event.
type Booking struct {
	ID          int       `json:"id"`
	User        int       `json:"user"`
	Event       int       `json:"event"`
	NumTickets  int       `json:"num_tickets"`
	BookingDate time.Time `json:"booking_date"`
	TotalPrice  string    `json:"total_price"`
	Status      string    `json:"status"`
	Purpose     string    `json:"purpose"`
}

// VenueBooking reserves a whole venue for one date.
type VenueBooking struct {
	ID                 int       `json:"id"`
	User               int       `json:"user"`
	Venue              int       `json:"venue"`
	VenueName          string    `json:"venue_name"`
	VenuePrice         string    `json:"venue_price"`
	EventDate          string    `json:"event_date"`
	Purpose            string    `json:"purpose"`
	CustomRequirements string    `json:"custom_requirements"`
	BookingDate        time.Time `json:"booking_date"`
	TotalPrice         string    `json:"total_price"`
	Status             string    `json:"status"`
}

// Feedback is a review left for an event.
type Feedback struct {
	ID        int       `json:"id"`
	User      int       `json:"user"`
	Event     int       `json:"event"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is returned by every endpoint that starts a session.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type otpRequest struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type otpVerifyRequest struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Code       string `json:"code"`
}

type bookingRequest struct {
	Event      int    `json:"event"`
	NumTickets int    `json:"num_tickets"`
	Purpose    string `json:"purpose"`
}

type venueBookingRequest struct {
	Venue              int    `json:"venue"`
	EventDate          string `json:"event_date"`
	Purpose            string `json:"purpose"`
	CustomRequirements string `json:"custom_requirements"`
}

type statusPatch struct {
	Status string `json:"status"`
}

type feedbackRequest struct {
	Event   int    `json:"event"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type userPatch struct {
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}
