package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chefbook/internal/database"
	"chefbook/internal/domain"
	"chefbook/internal/events"
	"chefbook/internal/models"
	"chefbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetChef(ctx context.Context, chefID string) (*domain.Chef, error) {
	args := m.Called(ctx, chefID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chef), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type stubAddOns map[string]int64

func (s stubAddOns) Resolve(_ models.ServiceType, names []string) ([]models.AddOn, error) {
	out := make([]models.AddOn, 0, len(names))
	for _, n := range names {
		price, ok := s[n]
		if !ok {
			return nil, domain.NewValidationError("add_ons", "unknown add-on %q", n)
		}
		out = append(out, models.AddOn{Name: n, Price: price})
	}
	return out, nil
}

type fixture struct {
	svc     *Service
	repo    *repository.BookingRepository
	catalog *mockCatalog
	bus     *mockEventBus
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "lifecycle.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewBookingRepository(db)
	catalog := new(mockCatalog)
	catalog.On("GetChef", mock.Anything, "chef-1").Return(&domain.Chef{ID: "chef-1", HourlyRate: 1000, Active: true}, nil).Maybe()
	catalog.On("GetChef", mock.Anything, "chef-off").Return(&domain.Chef{ID: "chef-off", HourlyRate: 1000, Active: false}, nil).Maybe()
	catalog.On("GetChef", mock.Anything, "ghost").Return(nil, &domain.NotFoundError{Resource: "chef", ID: "ghost"}).Maybe()

	bus := new(mockEventBus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewService(repo, catalog, stubAddOns{"cake": 500, "decor": 250}, bus, &logger)
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, repo: repo, catalog: catalog, bus: bus}
}

func saturdayRequest() CreateRequest {
	return CreateRequest{
		ChefID:        "chef-1",
		Date:          "2026-10-24",
		StartTime:     "18:00",
		DurationHours: 3,
		GuestCount:    5,
		ServiceType:   models.ServiceBirthday,
	}
}

func TestFSM(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        models.Status
		to          models.Status
		shouldAllow bool
	}{
		{"pending to confirmed", models.StatusPending, models.StatusConfirmed, true},
		{"pending to cancelled", models.StatusPending, models.StatusCancelled, true},
		{"confirmed to completed", models.StatusConfirmed, models.StatusCompleted, true},
		{"confirmed to cancelled", models.StatusConfirmed, models.StatusCancelled, true},
		{"completed to completed is a no-op", models.StatusCompleted, models.StatusCompleted, true},
		{"pending to completed", models.StatusPending, models.StatusCompleted, false},
		{"confirmed to pending", models.StatusConfirmed, models.StatusPending, false},
		{"completed to cancelled", models.StatusCompleted, models.StatusCancelled, false},
		{"cancelled to confirmed", models.StatusCancelled, models.StatusConfirmed, false},
		{"cancelled to cancelled", models.StatusCancelled, models.StatusCancelled, false},
		{"rejected is a dead end", models.StatusRejected, models.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
			err := fsm.Check(tt.from, tt.to)
			if tt.shouldAllow {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		})
	}

	assert.True(t, fsm.IsNoop(models.StatusCompleted, models.StatusCompleted))
	assert.False(t, fsm.IsNoop(models.StatusPending, models.StatusPending))
	assert.Empty(t, fsm.Targets(models.StatusCancelled))
}

func TestCreate_PricesAndStores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.PaymentPending, b.PaymentStatus)
	assert.Equal(t, int64(3000), b.BasePrice)
	assert.Equal(t, 1.2, b.SurgeMultiplier)
	assert.Equal(t, "Weekend Demand", b.SurgeReason)
	assert.Equal(t, int64(3600), b.TotalPrice)
	require.NotNil(t, b.UserID)
	assert.Equal(t, "user-1", *b.UserID)

	stored, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.TotalPrice, stored.TotalPrice)

	f.bus.AssertCalled(t, "PublishJSON", events.BookingStatusChanged, events.StatusChanged{
		BookingID: b.ID, Status: "pending", UserID: "user-1", ChefID: "chef-1",
	})
}

func TestCreate_LargerPartyCostsMore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	small, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	req := saturdayRequest()
	req.StartTime = "10:00"
	req.GuestCount = 10
	large, err := f.svc.Create(ctx, "user-1", req)
	require.NoError(t, err)

	assert.Greater(t, large.TotalPrice, small.TotalPrice)
}

func TestCreate_GuestBookingAndAddOns(t *testing.T) {
	f := setup(t)
	req := saturdayRequest()
	req.AddOns = []string{"cake", "decor"}

	b, err := f.svc.Create(context.Background(), "", req)
	require.NoError(t, err)
	assert.Nil(t, b.UserID)
	assert.Equal(t, int64(750), b.AddOnTotal)
	assert.Equal(t, int64(3600+750), b.TotalPrice)
	assert.Len(t, b.AddOns, 2)
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name  string
		mut   func(r *CreateRequest)
		field string
	}{
		{"missing chef", func(r *CreateRequest) { r.ChefID = "" }, "chef_id"},
		{"bad date", func(r *CreateRequest) { r.Date = "24/10/2026" }, "date"},
		{"bad start", func(r *CreateRequest) { r.StartTime = "7pm" }, "start_time"},
		{"zero duration", func(r *CreateRequest) { r.DurationHours = 0 }, "duration_hours"},
		{"zero guests", func(r *CreateRequest) { r.GuestCount = 0 }, "guest_count"},
		{"unknown service", func(r *CreateRequest) { r.ServiceType = "brunch" }, "service_type"},
		{"unknown add-on", func(r *CreateRequest) { r.AddOns = []string{"fireworks"} }, "add_ons"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := saturdayRequest()
			tt.mut(&req)
			_, err := f.svc.Create(context.Background(), "user-1", req)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreate_ChefNotBookable(t *testing.T) {
	f := setup(t)

	for _, chef := range []string{"ghost", "chef-off"} {
		req := saturdayRequest()
		req.ChefID = chef
		_, err := f.svc.Create(context.Background(), "user-1", req)
		assert.True(t, domain.IsNotFound(err), chef)
	}
}

func TestCreate_Conflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	req := saturdayRequest()
	req.StartTime = "20:00"
	_, err = f.svc.Create(ctx, "user-2", req)

	var ce *domain.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Conflicting, 1)
	assert.Equal(t, first.ID, ce.Conflicting[0].BookingID)
	assert.Equal(t, "2026-10-24", ce.Conflicting[0].Date)
	assert.Equal(t, "18:00", ce.Conflicting[0].StartTime)
	assert.Equal(t, 3, ce.Conflicting[0].DurationHours)

	req.StartTime = "21:00"
	_, err = f.svc.Create(ctx, "user-2", req)
	assert.NoError(t, err)
}

func TestCreate_ConcurrentRequestsGrantOneSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []*models.Booking
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := saturdayRequest()
			req.StartTime = fmt.Sprintf("%02d:00", 17+i%3)
			b, err := f.svc.Create(ctx, fmt.Sprintf("user-%d", i), req)
			if err != nil {
				var ce *domain.ConflictError
				assert.True(t, errors.As(err, &ce), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			granted = append(granted, b)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// 17:00, 18:00 and 19:00 three-hour slots all overlap pairwise.
	assert.Len(t, granted, 1)
	assert.Zero(t, f.svc.locks.size())

	active, err := f.repo.FindOverlapping(ctx, "chef-1", time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	t.Run("anonymous is rejected", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "", b.ID, models.StatusCancelled, "")
		var ue *domain.UnauthorizedError
		assert.True(t, errors.As(err, &ue))
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "user-9", b.ID, models.StatusCancelled, "")
		var ue *domain.UnauthorizedError
		assert.True(t, errors.As(err, &ue))
	})

	t.Run("only cancellation is manual", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "user-1", b.ID, models.StatusConfirmed, "")
		var ve *domain.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "user-1", "missing", models.StatusCancelled, "")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("owner cancels", func(t *testing.T) {
		got, err := f.svc.UpdateStatus(ctx, "user-1", b.ID, models.StatusCancelled, "plans changed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.Equal(t, "plans changed", got.Note)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "user-1", b.ID, models.StatusCancelled, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestUpdateStatus_ChefMayCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "", saturdayRequest())
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, "chef-1", b.ID, models.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestTransition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, b.ID, models.StatusPending, models.StatusCompleted, domain.StatusUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	confirmed, err := f.svc.Transition(ctx, b.ID, models.StatusPending, models.StatusConfirmed, domain.StatusUpdate{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)

	// a concurrent writer already moved it
	_, err = f.svc.Transition(ctx, b.ID, models.StatusPending, models.StatusCancelled, domain.StatusUpdate{})
	assert.ErrorIs(t, err, domain.ErrStale)

	completed, err := f.svc.Transition(ctx, b.ID, models.StatusConfirmed, models.StatusCompleted, domain.StatusUpdate{})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(f.svc.now()))

	again, err := f.svc.Transition(ctx, b.ID, models.StatusCompleted, models.StatusCompleted, domain.StatusUpdate{})
	require.NoError(t, err)
	assert.Equal(t, completed.Version, again.Version)
}

func TestListForChef(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	list, err := f.svc.ListForChef(ctx, "chef-1", time.Date(2026, 10, 24, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListForChef(ctx, "", time.Now())
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestQuote_DoesNotReserve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := saturdayRequest()
	req.AddOns = []string{"cake"}
	q, err := f.svc.Quote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.AddOnTotal)
	assert.Equal(t, int64(4100), q.TotalPrice)

	list, err := f.svc.ListForChef(ctx, "chef-1", time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, list)
	f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)

	_, err = f.svc.Quote(ctx, CreateRequest{ChefID: "ghost", Date: "2026-10-24", StartTime: "10:00",
		DurationHours: 2, GuestCount: 2, ServiceType: models.ServiceDaily})
	assert.True(t, domain.IsNotFound(err))
}

func TestUpdateStatus_PaidBookingGoesThroughRefund(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)
	paid := models.PaymentPaid
	_, err = f.svc.Transition(ctx, b.ID, models.StatusPending, models.StatusConfirmed, domain.StatusUpdate{PaymentStatus: &paid})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, "user-1", b.ID, models.StatusCancelled, "")
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)
	assert.Contains(t, ve.Message, "/refund")

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestUpdateStatus_WaitsForBookingLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "user-1", saturdayRequest())
	require.NoError(t, err)

	unlock := f.svc.LockBooking(b.ID)
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateStatus(ctx, "user-1", b.ID, models.StatusCancelled, "")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("cancel ran while the booking was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never acquired the booking lock")
	}
	assert.Zero(t, f.svc.bookings.size())
}

func TestCreate_PublishesAfterReleasingSlotLock(t *testing.T) {
	f := setup(t)
	bus := new(mockEventBus)
	var held int
	bus.On("PublishJSON", events.BookingStatusChanged, mock.Anything).
		Run(func(mock.Arguments) { held = f.svc.locks.size() }).
		Return(nil).Once()
	f.svc.publisher = bus

	_, err := f.svc.Create(context.Background(), "user-1", saturdayRequest())
	require.NoError(t, err)
	bus.AssertExpectations(t)
	assert.Zero(t, held)
}
