// Package bot wires the Telegram surface of the book exchange: commands,
// conversation state machines, and the callback handlers that drive lifecycle
// transitions. All business rules live in the lifecycle manager; handlers only
// translate updates into operations and render the outcome.
package bot

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	coreconfig "bookring/core/config"
	"bookring/core/logger"
	tg "bookring/core/telegram"
	"bookring/core/telegram/commands"
	"bookring/core/telegram/router"
	"bookring/core/telegram/state"
	"bookring/lifecycle"
	"bookring/storage"
	"bookring/sweep"
)

// FSM states used by the conversational flows.
const (
	stateAwaitCity   state.State = "start.city"
	stateAddTitle    state.State = "add.title"
	stateAddAuthors  state.State = "add.authors"
	stateFindKeyword state.State = "find.keyword"
)

// Temp-data keys within a session.
const (
	tempTitle    = "title"
	tempAuthors  = "authors"
	tempGenreIDs = "genre_ids"
)

// App assembles the bot from configuration and a storage backend.
type App struct {
	cfg     *coreconfig.Config
	store   storage.Store
	manager *lifecycle.Manager
	gateway *Gateway
	fsm     state.Manager
	reg     *tg.Registry
}

// New builds the application: lifecycle manager over the store, the Telegram
// notification gateway, and the command/callback registry.
func New(cfg *coreconfig.Config, store storage.Store) *App {
	gateway := NewGateway(store)
	gateway.SetExtensionDays(cfg.Exchange.ExtensionDays)
	manager := lifecycle.NewManager(store, gateway,
		lifecycle.Config{
			ReadingWindow: cfg.Exchange.ReadingWindow(),
			Extension:     cfg.Exchange.Extension(),
		},
		lifecycle.WithActionLog(store),
	)

	a := &App{
		cfg:     cfg,
		store:   store,
		manager: manager,
		gateway: gateway,
		fsm:     state.NewMemoryManager(),
		reg:     tg.NewRegistry(),
	}
	a.registerCommands()
	a.registerCallbacks()
	a.registerStates()
	a.reg.SetTextFallback(a.UnknownText())
	a.reg.SetCallbackNotFound(a.UnknownCallback())
	return a
}

// Manager exposes the lifecycle manager, used by the sweep subcommand.
func (a *App) Manager() *lifecycle.Manager { return a.manager }

// Gateway exposes the notification gateway for out-of-band binding.
func (a *App) Gateway() *Gateway { return a.gateway }

// CoreConfig implements the cmd.ConfigCarrier contract.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

func (a *App) registerCommands() {
	a.reg.RegisterCommand("/start", commands.Command{
		Handler:     a.cmdStart,
		Description: "Start the bot",
	})
	a.reg.RegisterCommand("/addbook", commands.Command{
		Handler:     a.cmdAddBook,
		Description: "Share a book",
	})
	a.reg.RegisterCommand("/findbook", commands.Command{
		Handler:     a.cmdFindBook,
		Description: "Find a book",
	})
	a.reg.RegisterCommand("/mybooks", commands.Command{
		Handler:     a.cmdMyBooks,
		Description: "Your books",
	})
	a.reg.RegisterCommand("/profile", commands.Command{
		Handler:     a.cmdProfile,
		Description: "Profile and settings",
	})
	a.reg.RegisterCommand("/rules", commands.Command{
		Handler:     a.cmdRules,
		Description: "Exchange rules",
	})
}

func (a *App) registerStates() {
	state.RegisterHandler(stateAwaitCity, a.fsmCity)
	state.RegisterHandler(stateAddTitle, a.fsmAddTitle)
	state.RegisterHandler(stateAddAuthors, a.fsmAddAuthors)
	state.RegisterHandler(stateFindKeyword, a.fsmFindKeyword)
}

// TelegramRunOptions builds the runtime options consumed by the core runner.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.fsm, a.reg, router.TextOptions{
		UnknownDocument: a.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))

	middlewares := append(tg.DefaultMiddlewares(a.cfg, nil),
		tg.Middleware{Name: "session", Use: state.WithSession(a.fsm)},
	)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.gateway.Bind(rt.Bot, rt.Dispatcher)

			sweeper := sweep.New(a.manager, a.store, sweep.Config{
				Interval: a.cfg.Exchange.SweepInterval(),
				Reminder: a.cfg.Exchange.Reminder(),
			})
			go func() {
				if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error(ctx, "service.sweep", "stopped",
						slog.String("err", err.Error()),
					)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.gateway.Bind(nil, nil)
			return nil
		},
	}, nil
}

// ensureUser upserts the sender into the users table and returns the record.
func (a *App) ensureUser(ctx context.Context, from *tele.User) (storage.User, error) {
	u, err := a.store.GetUser(ctx, from.ID)
	if err == nil {
		return u, nil
	}
	u = storage.User{
		TelegramID: from.ID,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Username:   from.Username,
	}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return storage.User{}, err
	}
	return u, nil
}
