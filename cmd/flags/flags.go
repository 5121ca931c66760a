package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/supplychain-registry-client/common"
	"github.com/ruteri/supplychain-registry-client/httpserver"
	"github.com/urfave/cli/v2"
)

const envPrefix = "COMPONENTCTL_"

func env(name string) []string {
	return []string{envPrefix + name}
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		// mutations wait for confirmation before responding
		WriteTimeout: 5 * time.Minute,
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC, http(s) or ws(s)",
	EnvVars: env("RPC_ADDR"),
}

var DescriptorFlag = &cli.StringSliceFlag{
	Name:    "descriptor",
	Usage:   "registry descriptor location URI (file, http(s), s3, ipfs, github, dnslink), tried in order. The built-in interface is used if none is given",
	EnvVars: env("DESCRIPTOR"),
}

var RegistryAddressFlag = &cli.StringFlag{
	Name:    "registry-address",
	Usage:   "override the registry address from the descriptor",
	EnvVars: env("REGISTRY_ADDRESS"),
}

var KeyFlag = &cli.StringFlag{
	Name:    "key",
	Usage:   "hex encoded private key to sign with",
	EnvVars: env("KEY"),
}

var KeystoreFlag = &cli.StringFlag{
	Name:    "keystore",
	Usage:   "encrypted JSON key file to sign with",
	EnvVars: env("KEYSTORE"),
}

var KeystorePasswordFlag = &cli.StringFlag{
	Name:    "keystore-password",
	Usage:   "password for --keystore",
	EnvVars: env("KEYSTORE_PASSWORD"),
}

var VaultKeyFlag = &cli.StringFlag{
	Name:    "vault-key",
	Usage:   "Vault KV v2 secret holding the private key: vault://host:port/<mount>/<path>#<field>",
	EnvVars: env("VAULT_KEY"),
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault token for --vault-key",
	EnvVars: []string{envPrefix + "VAULT_TOKEN", "VAULT_TOKEN"},
}

var DevFlag = &cli.BoolFlag{
	Name:    "dev",
	Value:   false,
	Usage:   "use an in-memory registry and a random key instead of a node",
	EnvVars: env("DEV"),
}

var ConfirmTimeoutFlag = &cli.DurationFlag{
	Name:    "confirm-timeout",
	Value:   2 * time.Minute,
	Usage:   "how long to wait for a transaction to be confirmed, 0 to wait indefinitely",
	EnvVars: env("CONFIRM_TIMEOUT"),
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: env("LISTEN_ADDR"),
}

var ChainPollFlag = &cli.DurationFlag{
	Name:    "chain-poll-interval",
	Value:   15 * time.Second,
	Usage:   "how often to check the node for chain changes",
	EnvVars: env("CHAIN_POLL_INTERVAL"),
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: env("LOG_JSON"),
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: env("LOG_DEBUG"),
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: env("METRICS_ADDR"),
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ClientFlags = []cli.Flag{
	RpcAddrFlag,
	DescriptorFlag,
	RegistryAddressFlag,
	KeyFlag,
	KeystoreFlag,
	KeystorePasswordFlag,
	VaultKeyFlag,
	VaultTokenFlag,
	DevFlag,
	ConfirmTimeoutFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	MetricsAddrFlag,
	ChainPollFlag,
	PprofFlag,
	DrainSecondsFlag,
}
