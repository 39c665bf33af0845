package main

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	accountKey = "account"

	defaultListLimit = 50
	maxListLimit     = 500
)

// NewWebApp registers every HTTP route on a fresh iris application.
func (gateway *Gateway) NewWebApp() *iris.Application {
	app := iris.New()
	app.Logger().SetLevel("warn")

	app.Get("/health", webHealthCheck)

	api := app.Party("/api", gateway.basicAuthMiddleware)
	{
		api.Post("/sms/send", gateway.webSendSMS)
		api.Get("/accounts/{id}/balance", gateway.webAccountBalance)
		api.Get("/accounts/{id}/usage", gateway.webAccountUsage)
		api.Get("/accounts/{id}/messages", gateway.webAccountMessages)
		api.Get("/reports/delivery", gateway.webDeliveryReport)
		api.Get("/reports/daily", gateway.webDailyStatistics)
		api.Get("/reports/receipts/{messageID}", gateway.webReceipts)

		admin := api.Party("/admin", gateway.adminOnly)
		admin.Post("/accounts", gateway.webCreateAccount)
		admin.Post("/grant", gateway.webGrantCredits)
		admin.Post("/system-credits", gateway.webAddSystemCredits)
		admin.Get("/system", gateway.webSystemOverview)
	}
	return app
}

// basicAuthMiddleware enforces Basic Authentication. The username is the
// billing account and the password is that account's API key. API_KEY is the
// master key of ADMIN_USERNAME only.
func (gateway *Gateway) basicAuthMiddleware(ctx iris.Context) {
	var lm = gateway.LogManager
	expectedAPIKey := gateway.Config.APIKey
	if expectedAPIKey == "" {
		lm.SendLog(lm.BuildLog("Web.Auth", "API_KEY is not set", logrus.ErrorLevel, nil))
		ctx.StatusCode(http.StatusInternalServerError)
		ctx.WriteString("Internal Server Error")
		return
	}

	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		gateway.unauthorized(ctx, "Authorization header missing")
		return
	}

	const prefix = "Basic "
	if !strings.HasPrefix(authHeader, prefix) {
		gateway.unauthorized(ctx, "Invalid Authorization header format")
		return
	}

	decodedBytes, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		gateway.unauthorized(ctx, "Failed to decode credentials")
		return
	}

	username, apiKey, ok := strings.Cut(string(decodedBytes), ":")
	if !ok || username == "" {
		gateway.unauthorized(ctx, "Invalid credentials format")
		return
	}
	if !gateway.authenticate(ctx, username, apiKey) {
		gateway.unauthorized(ctx, "Invalid API key")
		return
	}

	ctx.Values().Set(accountKey, username)
	ctx.Next()
}

func (gateway *Gateway) authenticate(ctx iris.Context, username, apiKey string) bool {
	if username == gateway.Config.AdminUsername {
		return subtle.ConstantTimeCompare([]byte(apiKey), []byte(gateway.Config.APIKey)) == 1
	}
	acct, err := gateway.Ledger.Account(ctx.Request().Context(), username)
	return err == nil && acct.CheckAPIKey(apiKey)
}

func (gateway *Gateway) unauthorized(ctx iris.Context, message string) {
	var lm = gateway.LogManager
	lm.SendLog(lm.BuildLog("Web.Auth", message, logrus.WarnLevel,
		map[string]interface{}{"client_ip": ctx.RemoteAddr()}))

	ctx.Header("WWW-Authenticate", `Basic realm="Restricted"`)
	ctx.StatusCode(http.StatusUnauthorized)
	ctx.WriteString("Unauthorized")
}

func (gateway *Gateway) adminOnly(ctx iris.Context) {
	if !gateway.isAdmin(ctx) {
		webError(ctx, http.StatusForbidden, "admin access required")
		return
	}
	ctx.Next()
}

func (gateway *Gateway) isAdmin(ctx iris.Context) bool {
	account := ctx.Values().GetString(accountKey)
	if account == gateway.Config.AdminUsername {
		return true
	}
	acct, err := gateway.Ledger.Account(ctx.Request().Context(), account)
	return err == nil && acct.IsAdmin
}

func webHealthCheck(ctx iris.Context) {
	ctx.StatusCode(http.StatusOK)
	ctx.WriteString("OK")
}

func webError(ctx iris.Context, status int, message string) {
	ctx.StopWithJSON(status, iris.Map{"status": "failed", "message": message})
}

// numberList accepts either a JSON array or a comma separated string.
type numberList []string

func (n *numberList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*n = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("numbers must be a list or a comma separated string")
	}
	*n = SplitNumbers(s)
	return nil
}

type sendRequest struct {
	Numbers numberList `json:"numbers"`
	Content string     `json:"content"`
}

func (gateway *Gateway) webSendSMS(ctx iris.Context) {
	var req sendRequest
	if err := ctx.ReadJSON(&req); err != nil {
		webError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	account := ctx.Values().GetString(accountKey)
	result := gateway.DispatchAndBill(ctx.Request().Context(), account, req.Numbers, req.Content)
	_ = ctx.JSON(result)
}

// accountFromPath returns the {id} parameter when the caller may read it.
func (gateway *Gateway) accountFromPath(ctx iris.Context) (string, bool) {
	id := ctx.Params().Get("id")
	if id != ctx.Values().GetString(accountKey) && !gateway.isAdmin(ctx) {
		webError(ctx, http.StatusForbidden, "forbidden")
		return "", false
	}
	return id, true
}

type balanceResponse struct {
	Account   string          `json:"account"`
	Balance   decimal.Decimal `json:"balance"`
	Held      decimal.Decimal `json:"held"`
	Available decimal.Decimal `json:"available"`
	Rate      decimal.Decimal `json:"rate"`
}

func (gateway *Gateway) webAccountBalance(ctx iris.Context) {
	id, ok := gateway.accountFromPath(ctx)
	if !ok {
		return
	}
	reqCtx := ctx.Request().Context()

	acct, err := gateway.Ledger.Account(reqCtx, id)
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	rate, err := gateway.Ledger.Quote(reqCtx, id)
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	_ = ctx.JSON(balanceResponse{
		Account:   acct.ID,
		Balance:   acct.Balance,
		Held:      acct.Held,
		Available: acct.Available(),
		Rate:      rate,
	})
}

func (gateway *Gateway) webAccountUsage(ctx iris.Context) {
	id, ok := gateway.accountFromPath(ctx)
	if !ok {
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if v := ctx.URLParam("since"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			webError(ctx, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = t
	}

	usage, err := gateway.Records.Usage(ctx.Request().Context(), id, since)
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	_ = ctx.JSON(usage)
}

// listLimit reads ?limit=, clamped to maxListLimit.
func listLimit(ctx iris.Context) int {
	limit := ctx.URLParamIntDefault("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (gateway *Gateway) webAccountMessages(ctx iris.Context) {
	id, ok := gateway.accountFromPath(ctx)
	if !ok {
		return
	}
	records, err := gateway.Records.List(ctx.Request().Context(), id, listLimit(ctx))
	if err != nil {
		webError(ctx, http.StatusInternalServerError, err.Error())
		return
	}
	_ = ctx.JSON(iris.Map{"account": id, "messages": records})
}

type systemOverview struct {
	Pool           decimal.Decimal `json:"pool"`
	RecentMessages []MessageRecord `json:"recent_messages"`
	DailyStats     interface{}     `json:"daily_stats,omitempty"`
	DailyStatsErr  string          `json:"daily_stats_error,omitempty"`
}

// webSystemOverview reports the pool balance, the latest records of every
// account and, when the HTTP gateway is configured, today's gateway statistics.
func (gateway *Gateway) webSystemOverview(ctx iris.Context) {
	reqCtx := ctx.Request().Context()
	pool, err := gateway.Ledger.PoolBalance(reqCtx)
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	records, err := gateway.Records.List(reqCtx, "", listLimit(ctx))
	if err != nil {
		webError(ctx, http.StatusInternalServerError, err.Error())
		return
	}

	overview := systemOverview{Pool: pool, RecentMessages: records}
	if gateway.HTTPCarrier != nil {
		stats, err := gateway.HTTPCarrier.GetDailyStatistics(reqCtx, time.Now())
		if err != nil {
			overview.DailyStatsErr = err.Error()
		} else {
			overview.DailyStats = stats.Raw
		}
	}
	_ = ctx.JSON(overview)
}

type createAccountRequest struct {
	Account string          `json:"account"`
	Rate    decimal.Decimal `json:"rate"`
	IsAdmin bool            `json:"is_admin"`
}

func (gateway *Gateway) webCreateAccount(ctx iris.Context) {
	var req createAccountRequest
	if err := ctx.ReadJSON(&req); err != nil {
		webError(ctx, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Account) == "" {
		webError(ctx, http.StatusBadRequest, "account is required")
		return
	}
	if req.Rate.IsNegative() {
		ledgerError(ctx, ErrInvalidAmount)
		return
	}

	apiKey, err := gateway.Ledger.CreateAccount(ctx.Request().Context(), LedgerAccount{
		ID:      strings.TrimSpace(req.Account),
		Rate:    req.Rate,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	ctx.StatusCode(http.StatusCreated)
	_ = ctx.JSON(iris.Map{"status": "success", "account": req.Account, "api_key": apiKey})
}

type grantRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

func (gateway *Gateway) webGrantCredits(ctx iris.Context) {
	var req grantRequest
	if err := ctx.ReadJSON(&req); err != nil {
		webError(ctx, http.StatusBadRequest, err.Error())
		return
	}
	if err := gateway.Ledger.GrantCredits(ctx.Request().Context(), req.Account, req.Amount); err != nil {
		ledgerError(ctx, err)
		return
	}
	_ = ctx.JSON(iris.Map{"status": "success", "account": req.Account, "amount": req.Amount})
}

func (gateway *Gateway) webAddSystemCredits(ctx iris.Context) {
	var req grantRequest
	if err := ctx.ReadJSON(&req); err != nil {
		webError(ctx, http.StatusBadRequest, err.Error())
		return
	}
	reqCtx := ctx.Request().Context()
	if err := gateway.Ledger.AddSystemCredits(reqCtx, req.Amount); err != nil {
		ledgerError(ctx, err)
		return
	}
	pool, err := gateway.Ledger.PoolBalance(reqCtx)
	if err != nil {
		ledgerError(ctx, err)
		return
	}
	_ = ctx.JSON(iris.Map{"status": "success", "pool": pool})
}

func (gateway *Gateway) webDeliveryReport(ctx iris.Context) {
	if gateway.HTTPCarrier == nil {
		webError(ctx, http.StatusServiceUnavailable, "HTTP gateway not configured")
		return
	}
	ids := SplitNumbers(ctx.URLParam("ids"))
	if len(ids) == 0 {
		webError(ctx, http.StatusBadRequest, "ids is required")
		return
	}

	resp, err := gateway.HTTPCarrier.GetDeliveryReport(ctx.Request().Context(), ids)
	if err != nil {
		providerError(ctx, err)
		return
	}
	_ = ctx.JSON(resp.Raw)
}

func (gateway *Gateway) webDailyStatistics(ctx iris.Context) {
	if gateway.HTTPCarrier == nil {
		webError(ctx, http.StatusServiceUnavailable, "HTTP gateway not configured")
		return
	}
	date := time.Now()
	if v := ctx.URLParam("date"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			webError(ctx, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = t
	}

	resp, err := gateway.HTTPCarrier.GetDailyStatistics(ctx.Request().Context(), date)
	if err != nil {
		providerError(ctx, err)
		return
	}
	_ = ctx.JSON(resp.Raw)
}

func (gateway *Gateway) webReceipts(ctx iris.Context) {
	if gateway.Archive == nil {
		webError(ctx, http.StatusServiceUnavailable, "event archive not configured")
		return
	}
	limit := ctx.URLParamInt64Default("limit", 20)
	events, err := gateway.Archive.Receipts(ctx.Request().Context(), ctx.Params().Get("messageID"), limit)
	if err != nil {
		webError(ctx, http.StatusInternalServerError, err.Error())
		return
	}
	_ = ctx.JSON(events)
}

func ledgerError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		webError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAccountExists):
		webError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidAmount):
		webError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientPool), errors.Is(err, ErrInsufficientBalance):
		webError(ctx, http.StatusPaymentRequired, err.Error())
	default:
		webError(ctx, http.StatusInternalServerError, err.Error())
	}
}

func providerError(ctx iris.Context, err error) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		webError(ctx, http.StatusBadGateway, perr.Error())
		return
	}
	webError(ctx, http.StatusBadGateway, err.Error())
}
