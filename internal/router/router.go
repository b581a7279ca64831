package router

import (
	"net/http"

	"github.com/studypal/backend/internal/auth"
	"github.com/studypal/backend/internal/intent"
	"github.com/studypal/backend/internal/ledger"
	"github.com/studypal/backend/internal/middleware"
	"github.com/studypal/backend/internal/settlement"
	"github.com/studypal/backend/internal/wallet"
)

// New returns an http.Handler serving the API under /api/v1. The webhook
// endpoint is the only unauthenticated mutation: Paystack cannot carry a
// bearer token, its requests are authenticated by HMAC signature instead.
func New(
	authHandler *auth.Handler,
	walletHandler *wallet.Handler,
	intentHandler *intent.Handler,
	settleHandler *settlement.Handler,
	ledgerHandler *ledger.Handler,
	authSvc auth.Service,
) http.Handler {
	mux := http.NewServeMux()
	requireAuth := middleware.BearerAuth(authSvc)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.HandleFunc("GET /api/v1/packages", intentHandler.ListPackages)
	mux.Handle("POST /api/v1/checkout", requireAuth(http.HandlerFunc(intentHandler.InitiateCheckout)))

	mux.Handle("GET /api/v1/wallet", requireAuth(http.HandlerFunc(walletHandler.GetWallet)))
	mux.Handle("GET /api/v1/groups/{id}/wallet", requireAuth(http.HandlerFunc(walletHandler.GetGroupWallet)))
	mux.Handle("POST /api/v1/wallet/consume", requireAuth(http.HandlerFunc(walletHandler.Consume)))
	mux.Handle("POST /api/v1/wallet/library-slots", requireAuth(http.HandlerFunc(walletHandler.PurchaseLibrarySlots)))

	mux.Handle("POST /api/v1/purchases/settle", requireAuth(http.HandlerFunc(settleHandler.SettlePurchase)))
	mux.HandleFunc("POST /api/v1/payments/webhook", settleHandler.Webhook)

	mux.Handle("GET /api/v1/transactions", requireAuth(http.HandlerFunc(ledgerHandler.ListTransactions)))

	return mux
}
