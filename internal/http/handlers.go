package http

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mongoadapter "github.com/sakan-app/sakan-backend/internal/adapters/mongo"
	"github.com/sakan-app/sakan-backend/internal/booking"
	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

// Catalog is the listing-content side of a property.
type Catalog interface {
	GetListing(ctx context.Context, id uuid.UUID) (*mongoadapter.ListingDoc, error)
	AddMedia(ctx context.Context, id uuid.UUID, url string) error
	RemoveMedia(ctx context.Context, id uuid.UUID, url string) error
}

// FileStore presigns direct-to-bucket uploads and deletes by public URL.
type FileStore interface {
	UploadURL(ctx context.Context, key, contentType string, expires time.Duration) (uploadURL, publicURL string, err error)
	Delete(ctx context.Context, publicURL string) error
}

const uploadURLTTL = 15 * time.Minute

type Handlers struct {
	svc     *booking.Service
	rec     *booking.Reconciler
	ledger  booking.Ledger
	catalog Catalog
	storage FileStore
	logger  observability.Logger
}

func NewHandlers(svc *booking.Service, rec *booking.Reconciler, ledger booking.Ledger, catalog Catalog, storage FileStore, logger observability.Logger) *Handlers {
	return &Handlers{
		svc:     svc,
		rec:     rec,
		ledger:  ledger,
		catalog: catalog,
		storage: storage,
		logger:  logger,
	}
}

type checkoutResponse struct {
	BookingID    uuid.UUID `json:"booking_id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	Amount       float64   `json:"amount"`
	PaymentToken string    `json:"payment_token,omitempty"`
	IframeID     string    `json:"iframe_id,omitempty"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
}

func toCheckoutResponse(c *booking.Checkout) checkoutResponse {
	return checkoutResponse{
		BookingID:    c.BookingID,
		PaymentID:    c.PaymentID,
		Amount:       c.Amount,
		PaymentToken: c.PaymentToken,
		IframeID:     c.IframeID,
		RedirectURL:  c.RedirectURL,
	}
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		PropertyID    uuid.UUID `json:"property_id"`
		Selections    []string  `json:"selections"`
		IsWhole       bool      `json:"is_whole"`
		PaymentMethod string    `json:"payment_method"`
		WalletNumber  string    `json:"wallet_number"`
		UserInfo      struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"user_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	checkout, err := h.svc.CreateDepositBooking(r.Context(), userID, booking.DepositRequest{
		PropertyID:    req.PropertyID,
		Selections:    req.Selections,
		IsWhole:       req.IsWhole,
		PaymentMethod: req.PaymentMethod,
		WalletNumber:  req.WalletNumber,
		UserInfo: domain.UserInfo{
			Name:  req.UserInfo.Name,
			Email: req.UserInfo.Email,
			Phone: req.UserInfo.Phone,
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(checkout))
}

func (h *Handlers) CreateRemainingPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
		WalletNumber  string `json:"wallet_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	checkout, err := h.svc.CreateRemainingPayment(r.Context(), userID, bookingID, req.PaymentMethod, req.WalletNumber)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(checkout))
}

type bookingResponse struct {
	ID              uuid.UUID  `json:"id"`
	PropertyID      uuid.UUID  `json:"property_id"`
	Selections      []string   `json:"selections"`
	IsWhole         bool       `json:"is_whole"`
	TotalPrice      float64    `json:"total_price"`
	TotalCommission float64    `json:"total_commission"`
	DepositAmount   float64    `json:"deposit_amount"`
	RemainingAmount float64    `json:"remaining_amount"`
	FirstPaid       bool       `json:"first_paid"`
	SecondPaid      bool       `json:"second_paid"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ExpiredAt       *time.Time `json:"expired_at,omitempty"`
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	b, err := h.svc.GetBooking(r.Context(), userID, bookingID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse{
		ID:              b.ID,
		PropertyID:      b.PropertyID,
		Selections:      b.Selections,
		IsWhole:         b.IsWhole,
		TotalPrice:      b.TotalPrice,
		TotalCommission: b.TotalCommission,
		DepositAmount:   b.DepositAmount,
		RemainingAmount: b.RemainingAmount,
		FirstPaid:       b.FirstPaid,
		SecondPaid:      b.SecondPaid,
		Status:          string(b.Status),
		ExpiresAt:       b.ExpiresAt,
		ExpiredAt:       b.ExpiredAt,
	})
}

func (h *Handlers) GetProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid property id", http.StatusBadRequest)
		return
	}

	var property *domain.Property
	err = h.ledger.WithTx(r.Context(), func(tx booking.Tx) error {
		property, err = tx.GetProperty(r.Context(), propertyID)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"id":               property.ID,
		"status":           property.Status,
		"price":            property.Price,
		"discount_price":   property.DiscountPrice,
		"required_deposit": property.DepositRequired(),
		"rooms":            property.Rooms,
		"booked_units":     property.BookedUnits,
	}

	// Listing content is decorative; the ledger row alone is a valid
	// answer when the catalog is unavailable.
	if listing, err := h.catalog.GetListing(r.Context(), propertyID); err == nil {
		resp["listing"] = listing
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymobWebhook applies a gateway notification. The signature arrives
// as the hmac query parameter. Any error status makes the gateway
// retry, so only verification and parse failures are terminal.
func (h *Handlers) PaymobWebhook(w http.ResponseWriter, r *http.Request) {
	var n paymob.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.rec.Process(r.Context(), n.Callback(), r.URL.Query().Get("hmac"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserID(r.Context()); !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		Filename    string    `json:"filename"`
		ContentType string    `json:"content_type"`
		PropertyID  uuid.UUID `json:"property_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Filename == "" || req.ContentType == "" {
		http.Error(w, "filename and content_type are required", http.StatusBadRequest)
		return
	}

	key := "listings/" + uuid.New().String() + "/" + path.Base(req.Filename)
	uploadURL, publicURL, err := h.storage.UploadURL(r.Context(), key, req.ContentType, uploadURLTTL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.PropertyID != uuid.Nil {
		if err := h.catalog.AddMedia(r.Context(), req.PropertyID, publicURL); err != nil {
			h.logger.WithError(err).Warn("failed to attach media to listing")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"upload_url": uploadURL,
		"public_url": publicURL,
	})
}

func (h *Handlers) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserID(r.Context()); !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		URL        string    `json:"url"`
		PropertyID uuid.UUID `json:"property_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.storage.Delete(r.Context(), req.URL); err != nil {
		h.writeError(w, err)
		return
	}
	if req.PropertyID != uuid.Nil {
		if err := h.catalog.RemoveMedia(r.Context(), req.PropertyID, req.URL); err != nil {
			h.logger.WithError(err).Warn("failed to detach media from listing")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrFailedPrecondition),
		errors.Is(err, domain.ErrSerializationFailure):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
