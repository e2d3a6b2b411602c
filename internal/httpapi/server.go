// Package httpapi is the HTTP/WS adapter (C10): a thin chi router
// binding spec.md §6's external request surface onto the C7 façade.
// Grounded on the teacher's internal/api/server.go (same router shape:
// chi + middleware.Logger/Recoverer/Timeout, JWT bearer auth, bcrypt
// registration, admin-only subrouter) with the prediction-market routes
// (anchor bets, side bets, market resolution) replaced by spot-exchange
// routes over C7's operations.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"wager-exchange/internal/account"
	"wager-exchange/internal/coreerr"
	"wager-exchange/internal/model"
	"wager-exchange/internal/repository"
)

// Server adapts one market's account.Facade onto HTTP. A multi-market
// deployment runs one Server (or one sub-router) per market.
type Server struct {
	facade *account.Facade
	repo   repository.Repository
	secret []byte
}

func NewServer(facade *account.Facade, repo repository.Repository, jwtSecret string) *Server {
	return &Server{facade: facade, repo: repo, secret: []byte(jwtSecret)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})

	r.Post("/api/register", s.register)
	r.Post("/api/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/wallet/{asset}", s.getBalance)
		r.Get("/api/wallet/{asset}/deposit-address", s.getDepositAddress)
		r.Post("/api/wallet/deposit", s.creditDeposit)
		r.Post("/api/wallet/withdraw", s.requestWithdrawal)
		r.Post("/api/wallet/withdraw/{id}/complete", s.completeWithdrawal)

		r.Get("/api/orders", s.listOrders)
		r.Get("/api/trades", s.listTrades)
		r.Post("/api/orders", s.placeOrder)
		r.Delete("/api/orders/{id}", s.cancelOrder)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/api/admin/withdrawals/pending", s.listPendingWithdrawals)
			r.Post("/api/admin/withdrawals/{id}/approve", s.approveWithdrawal)
			r.Post("/api/admin/withdrawals/{id}/reject", s.rejectWithdrawal)
			r.Post("/api/admin/accounts/{id}/freeze", s.freezeAccount)
			r.Post("/api/admin/accounts/{id}/unfreeze", s.unfreezeAccount)
			r.Get("/api/admin/audit-logs", s.auditLogs)
			r.Get("/api/admin/market-overview", s.marketOverview)
		})
	})

	return r
}

// ── Auth ─────────────────────────────────────────────

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Email == "" || len(req.Password) < 6 {
		jsonErr(w, 400, "email and password (min 6 chars) required")
		return
	}

	existing, _ := s.repo.Users().GetByEmail(r.Context(), req.Email)
	if existing != nil {
		jsonErr(w, 409, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonErr(w, 500, "hash failed")
		return
	}

	user, _, err := s.facade.CreateUser(r.Context(), req.Email, string(hash))
	if err != nil {
		writeErr(w, err)
		return
	}

	token := s.makeToken(user.ID)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}

	user, err := s.repo.Users().GetByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}

	token := s.makeToken(user.ID)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) makeToken(userID string) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(72 * time.Hour).Unix(),
	}
	t, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return t
}

// ── Middleware ────────────────────────────────────────

type ctxKey string

const ctxUserID ctxKey = "userID"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonErr(w, 401, "missing token")
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			jsonErr(w, 401, "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonErr(w, 401, "invalid claims")
			return
		}
		userID, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly is a pass-through: it checks nothing itself and trusts no JWT
// claim, since admin identity is resolved externally per spec.md §9. The
// admin check is the façade's AdminPredicate, applied by each admin
// façade call, which rejects a non-admin.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return next
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(ctxUserID).(string)
	return uid
}

// ── Wallet ───────────────────────────────────────────

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	asset := model.Asset(chi.URLParam(r, "asset"))
	bal, err := s.facade.GetBalance(r.Context(), userID(r), asset)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, bal)
}

func (s *Server) getDepositAddress(w http.ResponseWriter, r *http.Request) {
	asset := model.Asset(chi.URLParam(r, "asset"))
	json200(w, map[string]string{"address": s.facade.DepositAddress(userID(r), asset)})
}

func (s *Server) creditDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset  string          `json:"asset"`
		Amount decimal.Decimal `json:"amount"`
		TxHash string          `json:"tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	tx, err := s.facade.CreditDeposit(r.Context(), userID(r), model.Asset(req.Asset), req.Amount, req.TxHash)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, tx)
}

func (s *Server) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset   string          `json:"asset"`
		Amount  decimal.Decimal `json:"amount"`
		Address string          `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	tx, err := s.facade.RequestWithdrawal(r.Context(), userID(r), model.Asset(req.Asset), req.Amount, req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, tx)
}

func (s *Server) completeWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	tx, err := s.facade.CompleteWithdrawal(r.Context(), id, req.TxHash)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, tx)
}

// ── Orders ───────────────────────────────────────────

type placeOrderReq struct {
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	TimeInForce string          `json:"time_in_force"`
	Price       decimal.Decimal `json:"price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	Amount      decimal.Decimal `json:"amount"`
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	side := model.OrderSide(req.Side)
	if side != model.SideBuy && side != model.SideSell {
		jsonErr(w, 400, "side must be BUY or SELL")
		return
	}
	tif := model.TimeInForce(req.TimeInForce)
	if tif == "" {
		tif = model.TIFGTC
	}
	uid := userID(r)

	switch model.OrderType(req.Type) {
	case model.TypeLimit:
		o, err := s.facade.PlaceLimitOrder(r.Context(), uid, side, req.Price, req.Amount, tif)
		if err != nil {
			writeErr(w, err)
			return
		}
		json200(w, o)
	case model.TypeStop:
		o, err := s.facade.PlaceStopOrder(r.Context(), uid, side, req.Price, req.StopPrice, req.Amount, tif)
		if err != nil {
			writeErr(w, err)
			return
		}
		json200(w, o)
	case model.TypeOCO:
		limitLeg, stopLeg, err := s.facade.PlaceOCOOrder(r.Context(), uid, side, req.Price, req.StopPrice, req.Amount)
		if err != nil {
			writeErr(w, err)
			return
		}
		json200(w, map[string]any{"limit_order": limitLeg, "stop_order": stopLeg})
	case "MARKET":
		o, err := s.facade.PlaceMarketOrder(r.Context(), uid, side, req.Amount)
		if err != nil {
			writeErr(w, err)
			return
		}
		json200(w, o)
	default:
		jsonErr(w, 400, "type must be LIMIT, STOP, OCO, or MARKET")
	}
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.facade.CancelOrder(r.Context(), userID(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, map[string]bool{"cancelled": ok})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.facade.GetUserOrders(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	json200(w, orders)
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.facade.GetUserTrades(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	json200(w, trades)
}

// ── Admin ────────────────────────────────────────────

func (s *Server) listPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	txs, err := s.facade.ListPendingWithdrawals(r.Context(), userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, txs)
}

func (s *Server) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, err := s.facade.AdminApproveWithdrawal(r.Context(), userID(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, tx)
}

func (s *Server) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	tx, err := s.facade.AdminRejectWithdrawal(r.Context(), userID(r), id, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, tx)
}

func (s *Server) freezeAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := s.facade.FreezeAccount(r.Context(), userID(r), id, req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "frozen"})
}

func (s *Server) unfreezeAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.facade.UnfreezeAccount(r.Context(), userID(r), id); err != nil {
		writeErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "active"})
}

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 1000 {
		limit = n
	}
	logs, err := s.facade.GetAuditLogs(r.Context(), userID(r), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, logs)
}

func (s *Server) marketOverview(w http.ResponseWriter, r *http.Request) {
	depth := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("depth")); err == nil && n > 0 && n <= 200 {
		depth = n
	}
	overview, err := s.facade.GetMarketOverview(r.Context(), userID(r), depth)
	if err != nil {
		writeErr(w, err)
		return
	}
	json200(w, overview)
}

// ── Helpers ──────────────────────────────────────────

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr maps a coreerr.Error's Kind to an HTTP status code, matching
// the error taxonomy's semantics (spec.md §7).
func writeErr(w http.ResponseWriter, err error) {
	code := 500
	switch {
	case coreerr.Is(err, coreerr.KindInvalidOrder):
		code = 400
	case coreerr.Is(err, coreerr.KindInsufficientBalance):
		code = 402
	case coreerr.Is(err, coreerr.KindEntityNotFound):
		code = 404
	case coreerr.Is(err, coreerr.KindOrderLink):
		code = 400
	case coreerr.Is(err, coreerr.KindAdminPermission):
		code = 403
	case coreerr.Is(err, coreerr.KindWithdrawalApproval):
		code = 409
	case coreerr.Is(err, coreerr.KindSettlement):
		log.Error().Err(err).Msg("settlement error reached httpapi")
		code = 500
	}
	jsonErr(w, code, err.Error())
}
