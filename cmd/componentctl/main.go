package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/supplychain-registry-client/catalog"
	"github.com/ruteri/supplychain-registry-client/cmd/flags"
	"github.com/ruteri/supplychain-registry-client/common"
	"github.com/ruteri/supplychain-registry-client/httpserver"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/urfave/cli/v2"
)

var flagID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "component id",
}

var flagFormat = &cli.StringFlag{
	Name:  "format",
	Value: "json",
	Usage: "output format: json or text",
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "componentctl",
		Usage:   "Register and track supply chain components on the component registry",
		Version: common.Version,
		Flags:   append(append([]cli.Flag{}, flags.CommonFlags...), flags.ClientFlags...),
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "register a new component owned by the signing account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "component name"},
					&cli.StringFlag{Name: "description", Usage: "component description"},
					&cli.StringFlag{Name: "metadata", Usage: "initial metadata, typically JSON"},
				},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					result, err := c.gateway.RegisterComponent(cCtx.Context, cCtx.String("name"), cCtx.String("description"), cCtx.String("metadata"))
					if err != nil {
						return err
					}
					return printJSON(result)
				}),
			},
			{
				Name:  "transfer",
				Usage: "transfer ownership of a component",
				Flags: []cli.Flag{
					flagID,
					&cli.StringFlag{Name: "to", Required: true, Usage: "new owner address"},
				},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					result, err := c.gateway.TransferOwnership(cCtx.Context, cCtx.String(flagID.Name), cCtx.String("to"))
					if err != nil {
						return err
					}
					return printJSON(result)
				}),
			},
			{
				Name:  "update-status",
				Usage: "update the status of a component",
				Flags: []cli.Flag{
					flagID,
					&cli.StringFlag{Name: "status", Required: true, Usage: "new status"},
					&cli.StringFlag{Name: "details", Usage: "details recorded in the history"},
				},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					result, err := c.gateway.UpdateComponentStatus(cCtx.Context, cCtx.String(flagID.Name), cCtx.String("status"), cCtx.String("details"))
					if err != nil {
						return err
					}
					return printJSON(result)
				}),
			},
			{
				Name:  "show",
				Usage: "show component details",
				Flags: []cli.Flag{flagID, flagFormat},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					component, err := c.gateway.GetComponentDetails(cCtx.Context, cCtx.String(flagID.Name))
					if err != nil {
						return err
					}
					if cCtx.String(flagFormat.Name) == "text" {
						state := c.session.State()
						fmt.Printf("Component #%s: %s\n", component.ID, component.Name)
						fmt.Printf("  Description: %s\n", component.Description)
						fmt.Printf("  Status:      %s\n", component.CurrentStatus)
						fmt.Printf("  Owner:       %s", common.ShortAddress(component.CurrentOwner))
						if catalog.IsOwner(state, *component) {
							fmt.Print(" (you)")
						}
						fmt.Println()
						fmt.Printf("  Updated:     %s\n", common.FormatTimestamp(component.Timestamp, time.Local))
						fmt.Printf("  Metadata:    %s\n", component.InitialMetadata)
						return nil
					}
					return printJSON(component)
				}),
			},
			{
				Name:  "history",
				Usage: "show component history, oldest first",
				Flags: []cli.Flag{flagID, flagFormat},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					history, err := c.gateway.GetComponentHistory(cCtx.Context, cCtx.String(flagID.Name))
					if err != nil {
						return err
					}
					if cCtx.String(flagFormat.Name) == "text" {
						for _, h := range history {
							fmt.Printf("%s  %-24s %s  %s\n",
								common.FormatTimestamp(h.Timestamp, time.Local), h.Action, common.ShortAddress(h.By), h.Details)
						}
						return nil
					}
					return printJSON(history)
				}),
			},
			{
				Name:  "has-role",
				Usage: "check whether an account holds a role",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Value: "DEFAULT_ADMIN_ROLE", Usage: "role name or 0x-prefixed role hash"},
					&cli.StringFlag{Name: "account", Usage: "account to check, the signing account by default"},
				},
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					account := cCtx.String("account")
					if account == "" {
						state := c.session.State()
						if state.Account == nil {
							return errNoAccount
						}
						account = state.Account.Hex()
					}
					role := cCtx.String("role")
					return printJSON(httpserver.RoleResponse{
						Role:    role,
						Account: account,
						HasRole: c.gateway.HasRole(cCtx.Context, role, account),
					})
				}),
			},
			{
				Name:  "watch",
				Usage: "print registry events as JSON lines until interrupted",
				Action: withClient(func(cCtx *cli.Context, c *Client) error {
					events := make(chan interfaces.DomainEvent, 64)
					unsubscribe := c.binding.Subscribe(func(u interfaces.BindingUpdate) {
						if u.Event == nil {
							return
						}
						select {
						case events <- *u.Event:
						default:
							c.log.Warn("Dropping event, output is too slow", slog.String("type", string(u.Event.Type)))
						}
					})
					defer unsubscribe()

					encoder := json.NewEncoder(os.Stdout)
					for {
						select {
						case <-cCtx.Context.Done():
							return nil
						case ev := <-events:
							if err := encoder.Encode(ev); err != nil {
								return err
							}
						}
					}
				}),
			},
			{
				Name:   "serve",
				Usage:  "serve the HTTP and WebSocket API",
				Flags:  flags.ServerFlags,
				Action: serve,
			},
		},
	}
}

func main() {
	app := newApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// withClient wires a Client and connects the wallet before running action.
func withClient(action func(cCtx *cli.Context, c *Client) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		c, err := NewClient(cCtx, logger, nil)
		if err != nil {
			return err
		}
		defer c.Close()
		c.LogNotifications()

		if err := c.Connect(cCtx.Context); err != nil {
			return err
		}
		return action(cCtx, c)
	}
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func serve(cCtx *cli.Context) error {
	ctx := cCtx.Context
	logger := flags.SetupLogger(cCtx)

	hub := httpserver.NewHub(logger, nil)

	c, err := NewClient(cCtx, logger, hub)
	if err != nil {
		return err
	}
	defer c.Close()

	detachCatalog := c.catalog.Attach(ctx, c.binding)
	defer detachCatalog()

	handler := httpserver.NewHandler(c.session, c.binding, c.center, c.gateway, c.catalog, logger)
	hub.SetSnapshot(handler.Snapshot)

	c.session.Subscribe(httpserver.Forward[interfaces.ConnectionState](hub, httpserver.MessageSession))
	c.binding.Subscribe(httpserver.Forward[interfaces.BindingUpdate](hub, httpserver.MessageBinding))
	c.center.Subscribe(httpserver.Forward[[]interfaces.Notification](hub, httpserver.MessageNotifications))
	c.catalog.Subscribe(httpserver.Forward[[]interfaces.Component](hub, httpserver.MessageCatalog))

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler, hub, c.promMetrics)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	go func() {
		if err := c.session.Start(ctx); err != nil {
			logger.Error("Wallet event loop stopped", "err", err)
		}
	}()
	go func() {
		if err := c.provider.WatchChain(ctx, cCtx.Duration(flags.ChainPollFlag.Name)); err != nil {
			logger.Error("Chain watcher stopped", "err", err)
		}
	}()

	// restore a previously authorized connection without prompting
	c.session.Init(ctx)

	server.RunInBackground()

	logger.Info("Server is running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}
