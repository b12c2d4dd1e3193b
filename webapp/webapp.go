package webapp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"

	"github.com/ts4z/tote/app/handlers"
	"github.com/ts4z/tote/bank"
	"github.com/ts4z/tote/dep"
	"github.com/ts4z/tote/gossip"
	"github.com/ts4z/tote/he"
	"github.com/ts4z/tote/middleware"
	"github.com/ts4z/tote/middleware/c2ctx"
	"github.com/ts4z/tote/middleware/labrea"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/password"
	"github.com/ts4z/tote/permission"
	"github.com/ts4z/tote/protocol"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/urlpath"
	"github.com/ts4z/tote/varz"
)

var (
	clientClosedWhileListening = varz.NewInt("clientClosedWhileListening")
	timedOutWhileListening     = varz.NewInt("timedOutWhileListening")
	listenNotifiedClient       = varz.NewInt("listenNotifiedClient")
	loginFailures              = varz.NewInt("loginFailures")
	claimsWithdrawn            = varz.NewInt("claimsWithdrawn")
)

type nower interface {
	Now() time.Time
}

// Config holds the configuration for creating a new App.
type Config struct {
	Pool        *permission.PoolFacade
	SiteStorage state.SiteStorage
	UserStorage state.UserStorage
	Treasury    *bank.Bank
	Bakery      *permission.Bakery
	Gossiper    *gossip.Gossiper
	Clock       nower
}

// App is the main web application.  It is a thin JSON layer: everything
// interesting happens in the pool manager; the handlers only parse, call,
// and encode.
type App struct {
	pool        *permission.PoolFacade
	siteStorage state.SiteStorage
	userStorage state.UserStorage
	treasury    *bank.Bank
	bakery      *permission.Bakery
	gossiper    *gossip.Gossiper
	clock       nower

	mux     *http.ServeMux
	handler http.Handler
}

func allowedOrigins(sc *model.SiteConfig) []string {
	r := []string{}
	for _, origin := range sc.AllowedOriginDomains {
		r = append(r, fmt.Sprintf("https://%s", origin))
		r = append(r, fmt.Sprintf("http://%s", origin))
	}
	for _, origin := range r {
		log.Printf("CORS allowing origin %s", origin)
	}
	return r
}

// New creates a new App with the given configuration.
func New(ctx context.Context, config *Config) *App {
	// Prime this so we can check for errors.
	sc, err := config.SiteStorage.FetchSiteConfig(ctx)
	if err != nil {
		log.Fatalf("can't get SiteConfig: %v", err)
	}

	app := &App{
		pool:        dep.Required(config.Pool),
		siteStorage: dep.Required(config.SiteStorage),
		userStorage: dep.Required(config.UserStorage),
		treasury:    dep.Required(config.Treasury),
		bakery:      dep.Required(config.Bakery),
		gossiper:    dep.Required(config.Gossiper),
		clock:       dep.Required(config.Clock),
		mux:         dep.Required(http.DefaultServeMux),
	}

	// Stack the handlers together.
	c2c := c2ctx.Handler(&c2ctx.Config{
		Bakery:      app.bakery,
		UserStorage: app.userStorage,
		Next:        app.mux,
	})
	logger := middleware.NewRequestLogger(c2c, app.clock)
	// Use the real clock for the tarpit; it wants sub-ms precision.
	tarpit := labrea.New(clockwork.NewRealClock(), logger)
	corsMW := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(sc),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	})
	app.handler = corsMW.Handler(tarpit)

	app.InstallHandlers()

	return app
}

// Handler returns the configured HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) handleFunc(pattern string, handler func(context.Context, http.ResponseWriter, *http.Request)) {
	app.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		handler(ctx, w, r)
	})
}

func (app *App) handleFuncTakingSeq(pattern string, handler func(context.Context, int64, http.ResponseWriter, *http.Request)) {
	app.handleFunc(pattern, func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		seq, err := urlpath.SeqPathValue(w, r)
		if err != nil {
			return
		}
		handler(ctx, seq, w, r)
	})
}

func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("can't encode response: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		he.SendErrorToHTTPClient(w, "decode request", he.HTTPCodedErrorf(400, "decoding json: %v", err))
		return false
	}
	return true
}

type okResponse struct {
	OK bool
}

var statusOK = okResponse{OK: true}

func (app *App) handleCreateRound(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Competitors  []string
		BettingStart int64
		BettingEnd   int64
		RaceStart    time.Time
		RaceEnd      time.Time
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	round, err := app.pool.CreateRound(ctx, req.Competitors, req.BettingStart, req.BettingEnd, req.RaceStart, req.RaceEnd)
	if err != nil {
		he.SendErrorToHTTPClient(w, "create round", err)
		return
	}
	sendJSON(w, round)
}

func (app *App) handlePlaceStake(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Competitor string
		Staker     string
		Amount     int64
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := app.pool.PlaceStake(ctx, seq, req.Competitor, req.Staker, req.Amount); err != nil {
		he.SendErrorToHTTPClient(w, "place stake", err)
		return
	}
	sendJSON(w, statusOK)
}

func (app *App) handleDeclareWinner(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Competitor string
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := app.pool.DeclareWinner(ctx, seq, req.Competitor); err != nil {
		he.SendErrorToHTTPClient(w, "declare winner", err)
		return
	}
	sendJSON(w, statusOK)
}

// batchRange parses the start/end query parameters for a settlement batch.
func batchRange(r *http.Request) (int, int, error) {
	start, err := urlpath.IntQueryValue(r, "start", 0)
	if err != nil {
		return 0, 0, err
	}
	end, err := urlpath.IntQueryValue(r, "end", start)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (app *App) handleAggregate(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	start, end, err := batchRange(r)
	if err != nil {
		he.SendErrorToHTTPClient(w, "parse batch range", err)
		return
	}
	if err := app.pool.AggregateWinnings(ctx, seq, start, end); err != nil {
		he.SendErrorToHTTPClient(w, "aggregate winnings", err)
		return
	}
	sendJSON(w, statusOK)
}

func (app *App) handleDistribute(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	start, end, err := batchRange(r)
	if err != nil {
		he.SendErrorToHTTPClient(w, "parse batch range", err)
		return
	}
	if err := app.pool.DistributeRewards(ctx, seq, start, end); err != nil {
		he.SendErrorToHTTPClient(w, "distribute rewards", err)
		return
	}
	sendJSON(w, statusOK)
}

func (app *App) handleFinalize(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	if err := app.pool.FinalizeFees(ctx, seq); err != nil {
		he.SendErrorToHTTPClient(w, "finalize fees", err)
		return
	}
	sendJSON(w, statusOK)
}

func (app *App) handleGetRound(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	round, err := app.pool.Round(ctx, seq)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch round", err)
		return
	}
	sendJSON(w, round)
}

func (app *App) handleCurrentRound(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	round, err := app.pool.CurrentRound(ctx)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch current round", err)
		return
	}
	sendJSON(w, round)
}

func (app *App) handleStakers(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	competitor := r.URL.Query().Get("competitor")
	start, end, err := batchRange(r)
	if err != nil {
		he.SendErrorToHTTPClient(w, "parse batch range", err)
		return
	}
	stakes, err := app.pool.Stakers(ctx, seq, competitor, start, end)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch stakers", err)
		return
	}
	sendJSON(w, stakes)
}

func (app *App) handleGetStake(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := app.pool.StakeOf(ctx, seq, q.Get("competitor"), q.Get("staker"))
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch stake", err)
		return
	}
	sendJSON(w, st)
}

// handleStakersCSV dumps a competitor's staker list as CSV, for settlement
// audits.  One row per staker, in staker-list order.
func (app *App) handleStakersCSV(ctx context.Context, seq int64, w http.ResponseWriter, r *http.Request) {
	competitor := r.URL.Query().Get("competitor")
	round, err := app.pool.Round(ctx, seq)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch round", err)
		return
	}
	n := round.StakerCounts[competitor]
	stakes, err := app.pool.Stakers(ctx, seq, competitor, 0, n)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch stakers", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	cw.Write([]string{"index", "staker", "amount", "aggregated", "paid"})
	for _, st := range stakes {
		cw.Write([]string{
			strconv.Itoa(st.Index),
			st.Staker,
			strconv.FormatInt(st.Amount, 10),
			strconv.FormatBool(st.Aggregated),
			strconv.FormatBool(st.Paid),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("can't write csv: %v", err)
	}
}

func (app *App) handleOverview(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	offset, err := urlpath.IntQueryValue(r, "offset", 0)
	if err != nil {
		he.SendErrorToHTTPClient(w, "parse offset", err)
		return
	}
	limit, err := urlpath.IntQueryValue(r, "limit", 20)
	if err != nil {
		he.SendErrorToHTTPClient(w, "parse limit", err)
		return
	}
	ov, err := app.pool.Overview(ctx, offset, limit)
	if err != nil {
		he.SendErrorToHTTPClient(w, "fetch overview", err)
		return
	}
	sendJSON(w, ov)
}

func (app *App) handleGetClaim(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		he.SendErrorToHTTPClient(w, "parse claim request", he.HTTPCodedErrorf(400, "account required"))
		return
	}
	sendJSON(w, struct {
		Account string
		Claim   int64
	}{Account: account, Claim: app.treasury.Claim(account)})
}

func (app *App) handleWithdrawClaim(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Account == "" {
		he.SendErrorToHTTPClient(w, "parse claim request", he.HTTPCodedErrorf(400, "account required"))
		return
	}
	amount, paid := app.treasury.WithdrawClaim(req.Account)
	if paid {
		claimsWithdrawn.Add(1)
	}
	sendJSON(w, struct {
		Account string
		Amount  int64
		Paid    bool
	}{Account: req.Account, Amount: amount, Paid: paid})
}

func (app *App) handleLogin(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string
		Password string
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	nope := func() {
		loginFailures.Add(1)
		he.SendErrorToHTTPClient(w, "login",
			he.HTTPCodedErrorf(http.StatusUnauthorized, "invalid user or password"))
	}
	if req.Username == "" || req.Password == "" {
		nope()
		return
	}

	row, err := app.userStorage.FetchUserRow(ctx, req.Username)
	if err != nil {
		nope()
		return
	}
	checker, err := password.NewChecker(row)
	if err != nil {
		nope()
		return
	}
	identity, err := checker.Validate(req.Password)
	if err != nil {
		nope()
		return
	}
	err = app.bakery.BakeCookie(w, &model.AuthCookieData{
		UserID:   identity.ID,
		Nick:     identity.Nick,
		IssuedAt: app.clock.Now(),
	})
	if err != nil {
		he.SendErrorToHTTPClient(w, "bake cookie", err)
		return
	}
	sendJSON(w, statusOK)
}

// handleListen long-polls for the next pool event.  The client reconnects
// after each event; missing an event is fine, it can refetch the round.
func (app *App) handleListen(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ch, cancel := app.gossiper.Subscribe()
	defer cancel()

	select {
	case ev := <-ch:
		listenNotifiedClient.Add(1)
		sendJSON(w, ev)
	case <-time.After(time.Hour):
		timedOutWhileListening.Add(1)
		he.SendErrorToHTTPClient(w, "wait for pool event",
			he.HTTPCodedErrorf(http.StatusGatewayTimeout, "timeout"))
	case <-ctx.Done():
		clientClosedWhileListening.Add(1)
		log.Printf("client closed connection while listening for pool event")
	}
}

func (app *App) handleVersion(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sendJSON(w, struct {
		ProtocolVersion int
	}{ProtocolVersion: protocol.Version})
}

// InstallHandlers registers all HTTP routes.
func (app *App) InstallHandlers() {
	app.handleFunc("GET /robots.txt", func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		handlers.HandleRobotsTXT(w, r)
	})
	app.handleFunc("GET /api/version", app.handleVersion)

	app.handleFunc("POST /api/login", app.handleLogin)
	app.handleFunc("POST /api/logout", func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		app.bakery.ClearCookie(w)
		sendJSON(w, statusOK)
	})

	app.handleFunc("POST /api/rounds", app.handleCreateRound)
	app.handleFunc("GET /api/rounds/current", app.handleCurrentRound)
	app.handleFuncTakingSeq("GET /api/rounds/{seq}", app.handleGetRound)
	app.handleFuncTakingSeq("POST /api/rounds/{seq}/stakes", app.handlePlaceStake)
	app.handleFuncTakingSeq("GET /api/rounds/{seq}/stakers", app.handleStakers)
	app.handleFuncTakingSeq("GET /api/rounds/{seq}/stakers.csv", app.handleStakersCSV)
	app.handleFuncTakingSeq("GET /api/rounds/{seq}/stake", app.handleGetStake)
	app.handleFuncTakingSeq("POST /api/rounds/{seq}/winner", app.handleDeclareWinner)
	app.handleFuncTakingSeq("POST /api/rounds/{seq}/aggregate", app.handleAggregate)
	app.handleFuncTakingSeq("POST /api/rounds/{seq}/distribute", app.handleDistribute)
	app.handleFuncTakingSeq("POST /api/rounds/{seq}/finalize", app.handleFinalize)

	app.handleFunc("GET /api/overview", app.handleOverview)

	app.handleFunc("GET /api/claims", app.handleGetClaim)
	app.handleFunc("POST /api/claims/withdraw", app.handleWithdrawClaim)

	app.handleFunc("GET /api/listen", app.handleListen)
}

func contextualizer(ctx context.Context) func(net.Listener) context.Context {
	return func(_ net.Listener) context.Context {
		return ctx
	}
}

// Serve starts the HTTP server on the given listen address.
func (app *App) Serve(ctx context.Context, listenAddress string) error {
	wg := sync.WaitGroup{}

	type result struct {
		name string
		err  error
	}

	ch := make(chan *result)

	wg.Add(1)
	go func() {
		server := &http.Server{
			Addr:         listenAddress,
			Handler:      app.handler,
			BaseContext:  contextualizer(ctx),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 1 * time.Hour,
			IdleTimeout:  12 * time.Hour,
		}
		ch <- &result{"http", server.ListenAndServe()}
		wg.Done()
	}()

	go func() {
		wg.Wait()
		close(ch)
	}()

	errors := []error{}
	for res := range ch {
		if res.err != nil {
			log.Printf("server %s exited: %v", res.name, res.err)
			errors = append(errors, res.err)
		}
	}

	return fmt.Errorf("servers exited: %v", errors)
}
