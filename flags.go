package main

import (
	"xgos-feed/adapters"
	"xgos-feed/application"

	"github.com/urfave/cli/v2"
)

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	Usage:    "one of: [console, json]",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagStorePath = &cli.StringFlag{
	Name:     "store-path",
	Usage:    "credential store file",
	EnvVars:  []string{"XGOS_STORE_PATH"},
	Value:    "xgos-feed.yaml",
	Required: false,
}

var FlagMQTTHost = &cli.StringFlag{
	Name:     "mqtt-host",
	Usage:    "broker host, falls back to the stored server address",
	EnvVars:  []string{"MQTT_HOST"},
	Required: false,
}

var FlagMQTTPort = &cli.IntFlag{
	Name:     "mqtt-port",
	EnvVars:  []string{"MQTT_PORT"},
	Value:    application.DefaultBrokerPort,
	Required: false,
}

var FlagMQTTClientID = &cli.StringFlag{
	Name:     "mqtt-client-id",
	Usage:    "defaults to xgos-feed-<username>",
	EnvVars:  []string{"MQTT_CLIENT_ID"},
	Required: false,
}

var FlagMQTTUsername = &cli.StringFlag{
	Name:     "mqtt-username",
	Usage:    "falls back to the stored mqtt username",
	EnvVars:  []string{"MQTT_USERNAME"},
	Required: false,
}

var FlagMQTTPassword = &cli.StringFlag{
	Name:     "mqtt-password",
	EnvVars:  []string{"MQTT_PASSWORD"},
	Required: false,
}

var FlagMQTTKeepAlive = &cli.DurationFlag{
	Name:     "mqtt-keep-alive",
	EnvVars:  []string{"MQTT_KEEP_ALIVE"},
	Value:    application.DefaultKeepAlive,
	Required: false,
}

var FlagMQTTCleanSession = &cli.BoolFlag{
	Name:     "mqtt-clean-session",
	EnvVars:  []string{"MQTT_CLEAN_SESSION"},
	Value:    false,
	Required: false,
}

var FlagMQTTConnectTimeout = &cli.DurationFlag{
	Name:     "mqtt-connect-timeout",
	EnvVars:  []string{"MQTT_CONNECT_TIMEOUT"},
	Value:    adapters.MQTTDefaultConnectTimeout,
	Required: false,
}

var FlagReconnectDelay = &cli.DurationFlag{
	Name:     "reconnect-delay",
	EnvVars:  []string{"RECONNECT_DELAY"},
	Value:    application.DefaultReconnectDelay,
	Required: false,
}

var FlagRetryOnAuthFailure = &cli.BoolFlag{
	Name:     "retry-on-auth-failure",
	Usage:    "keep reconnecting after the broker rejects the credentials",
	EnvVars:  []string{"RETRY_ON_AUTH_FAILURE"},
	Value:    false,
	Required: false,
}

var FlagBufferCapacity = &cli.IntFlag{
	Name:     "buffer-capacity",
	EnvVars:  []string{"BUFFER_CAPACITY"},
	Value:    application.DefaultBufferCapacity,
	Required: false,
}

var FlagReportInterval = &cli.DurationFlag{
	Name:     "report-interval",
	EnvVars:  []string{"REPORT_INTERVAL"},
	Value:    application.DefaultReportInterval,
	Required: false,
}

var FlagDiagnosticsAddr = &cli.StringFlag{
	Name:     "diagnostics-addr",
	Usage:    "host:port for the diagnostics http server, disabled when empty",
	EnvVars:  []string{"DIAGNOSTICS_ADDR"},
	Required: false,
}

var FlagUserID = &cli.StringFlag{
	Name:     "user-id",
	EnvVars:  []string{"XGOS_USER_ID"},
	Required: true,
}

var FlagUsername = &cli.StringFlag{
	Name:     "username",
	EnvVars:  []string{"XGOS_USERNAME"},
	Required: true,
}

var FlagServerHost = &cli.StringFlag{
	Name:     "server-host",
	Usage:    "broker host to remember for later runs",
	EnvVars:  []string{"XGOS_SERVER_HOST"},
	Required: false,
}
