/*
Package ride runs the rental session state machine.

PURPOSE:
  A Ride is one usage episode from unlock to return:

    NONE -> IN_PROGRESS -> {COMPLETED, CANCELLED}   (terminal)

  Starting a ride moves no money. Ending one resolves the effective
  rates at the END instant, computes the cost, stamps it on the ride
  exactly once, and settles payment through the wallet service.

KEY INVARIANTS:
  - At most one IN_PROGRESS ride per user at any instant
  - A ride's cost is set at the COMPLETED transition and never recomputed
  - A bike is IN_USE for exactly the rides that hold it

SEE ALSO:
  - coordinator.go: The start/end/cancel transitions
  - pricing: Rate resolution and cost calculation
  - wallet: Payment settlement
*/
package ride

import (
	"context"
	"time"

	"github.com/Xybronix/EcoMobile-backend-sub001/ledger"
)

// =============================================================================
// RIDE - One rental session
// =============================================================================

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Location is a coordinate pair recorded at start and end for audit.
type Location struct {
	Lat float64
	Lng float64
}

// Ride is a rental session row.
type Ride struct {
	ID     ledger.RideID
	UserID ledger.UserID
	BikeID string
	PlanID string

	StartTime time.Time
	EndTime   *time.Time

	StartLocation Location
	EndLocation   *Location

	DistanceKm      float64
	DurationMinutes int

	// Cost is set exactly once, at the COMPLETED transition.
	Cost ledger.Money

	// PaymentFailed marks completed rides whose settlement debit failed.
	// The ride stays COMPLETED; collection is resolved out of band.
	PaymentFailed bool

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BIKE - Vehicle state, as seen by the coordinator
// =============================================================================

type BikeStatus string

const (
	BikeAvailable   BikeStatus = "AVAILABLE"
	BikeInUse       BikeStatus = "IN_USE"
	BikeMaintenance BikeStatus = "MAINTENANCE"
)

type Bike struct {
	ID        string
	Label     string
	Status    BikeStatus
	UpdatedAt time.Time
}

// =============================================================================
// STORE - Ride + bike persistence
// =============================================================================

// Store persists rides and bike state. StartRide and FinishRide are the
// two multi-row units: implementations perform their checks and writes
// inside a single store transaction.
type Store interface {
	// StartRide atomically verifies the bike is AVAILABLE and the user
	// has no IN_PROGRESS ride, then flips the bike to IN_USE and inserts
	// the ride. Fails with ErrBikeUnavailable or ErrSessionAlreadyActive.
	StartRide(ctx context.Context, r Ride) error

	// FinishRide writes the ride's terminal state and sets the bike's
	// status in the same unit.
	FinishRide(ctx context.Context, r Ride, bikeStatus BikeStatus) error

	GetRide(ctx context.Context, id ledger.RideID) (*Ride, error)
	ActiveRide(ctx context.Context, userID ledger.UserID) (*Ride, error)
	ListRides(ctx context.Context, userID ledger.UserID) ([]Ride, error)

	// ListUnpaidRides returns COMPLETED rides whose settlement debit
	// failed, oldest first. Input to the settlement retry loop.
	ListUnpaidRides(ctx context.Context) ([]Ride, error)

	GetBike(ctx context.Context, id string) (*Bike, error)
	SaveBike(ctx context.Context, b Bike) error
	ListBikes(ctx context.Context) ([]Bike, error)
}
