package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/ts4z/tote/bank"
	"github.com/ts4z/tote/config"
	"github.com/ts4z/tote/dbcache"
	"github.com/ts4z/tote/dbnotify"
	"github.com/ts4z/tote/dbutil"
	"github.com/ts4z/tote/gossip"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/permission"
	"github.com/ts4z/tote/pool"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/ts"
	"github.com/ts4z/tote/webapp"
	"github.com/ts4z/tote/yield"
)

func openStorage(ctx context.Context) (state.Storage, *sql.DB) {
	switch kind := config.StorageKind(); kind {
	case "memory":
		log.Printf("using in-memory storage; state is volatile")
		return state.NewMemoryStorage(), nil
	case "db":
		db, err := dbutil.Connect()
		if err != nil {
			log.Fatalf("can't connect to database: %v", err)
		}
		storage, err := state.NewDBStorage(ctx, db)
		if err != nil {
			log.Fatalf("can't configure database: %v", err)
		}
		return storage, db
	default:
		log.Fatalf("unknown storage kind %q", kind)
		return nil, nil
	}
}

func main() {
	ctx := context.Background()
	config.Init()

	clock := ts.NewRealSlotClock(config.SlotGenesis(), config.SlotInterval())

	unprotectedStorage, db := openStorage(ctx)

	rounds := dbcache.NewRoundStorage(128, unprotectedStorage)
	site := dbcache.NewSiteConfigStorage(unprotectedStorage, clock)
	users := dbcache.NewUserStorage(64, unprotectedStorage)

	siteConfig, err := site.FetchSiteConfig(ctx)
	if err != nil {
		log.Fatalf("can't fetch site config: %v", err)
	}

	bakery, err := permission.New(clock, siteConfig)
	if err != nil {
		log.Fatalf("can't create bakery: %v", err)
	}

	treasury := bank.New()
	gossiper := gossip.New()
	hooks := yield.Hooks{}
	hooks.RunInit(ctx)

	manager := pool.NewManager(&pool.Config{
		Clock:    clock,
		Storage:  rounds,
		Site:     site,
		Treasury: treasury,
		Gossiper: gossiper,
		Hooks:    hooks,
		MinStake: config.MinStake(),
	})

	if db != nil {
		// Invalidate the round cache when another writer touches a round.
		dispatcher := dbnotify.NewChangeDispatcher[*model.Round]("rounds", nil, rounds, rounds)
		listener, err := dbnotify.NewDBNotifyListener(db, dispatcher)
		if err != nil {
			log.Fatalf("can't create db listener: %v", err)
		}
		go func() {
			if err := listener.Listen(ctx); err != nil {
				log.Printf("db listener exited: %v", err)
			}
		}()
	}

	app := webapp.New(ctx, &webapp.Config{
		Pool:        permission.NewPoolFacade(manager),
		SiteStorage: site,
		UserStorage: permission.NewUserStorage(users, gossiper),
		Treasury:    treasury,
		Bakery:      bakery,
		Gossiper:    gossiper,
		Clock:       clock,
	})

	if err := app.Serve(ctx, config.ListenAddress()); err != nil {
		log.Fatalf("can't serve: %v", err)
	}
}
