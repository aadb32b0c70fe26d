package main

import (
	"fmt"
	"net"
	"os"

	"ForkGo/eventloop"
	"ForkGo/fork"
	"ForkGo/global"
	"ForkGo/metrics"
	"ForkGo/registrar"
	"ForkGo/timers"
	"ForkGo/transport"
	"ForkGo/webserver"
)

// environment variables
//
//nolint:revive
const (
	EnvServerIPv4 string = "server_ipv4"
	EnvSipUdpPort string = "sip_udp_port"
	EnvHttpPort   string = "http_port"
	EnvConfigPath string = "fork_config_path"
)

const (
	appName           = "ForkGo"
	defaultConfigPath = "forkconfig.json"
)

func main() {
	greeting()

	ip, sipPort, httpPort, configPath := checkArgs()

	loop := eventloop.New(4096)
	tsvc := timers.New(loop)
	config := fork.NewConfigStore(configPath)
	reg := registrar.NewInMemory()
	m := metrics.New(appName)

	router := fork.NewRouter(loop, tsvc, config, reg, m)

	global.LogInfo(global.LTSystem, fmt.Sprintf("attempting to listen on SIP UDP %s:%d", ip, sipPort))
	tp, err := transport.Listen(net.ParseIP(ip), sipPort, transport.DscpAF41, transport.JSONCodec{}, router)
	if err != nil {
		global.LogError(global.LTSystem, "failed to start SIP transport: "+err.Error())
		os.Exit(2)
	}
	_ = tp

	httpAddr := fmt.Sprintf("%s:%d", ip, httpPort)
	webserver.New(httpAddr, router, config, m).Start()

	global.WtGrp.Wait()
}

func greeting() {
	global.LogInfo(global.LTSystem, fmt.Sprintf("welcome to %s fork engine", appName))
}

func checkArgs() (ip string, sipPort, httpPort int, configPath string) {
	ip = os.Getenv(EnvServerIPv4)
	if ip == "" {
		ip = "0.0.0.0"
		global.LogWarning(global.LTConfiguration, "no self IPv4 address provided - defaulting to 0.0.0.0")
	}

	sup := os.Getenv(EnvSipUdpPort)
	sipPort, ok := global.Str2IntDefaultMinMax(sup, 5060, 1024, 65535)
	if !ok {
		global.LogWarning(global.LTConfiguration, "using default SIP UDP port 5060")
	}

	hp := os.Getenv(EnvHttpPort)
	httpPort, ok = global.Str2IntDefaultMinMax(hp, 8080, 80, 65535)
	if !ok {
		global.LogWarning(global.LTConfiguration, "using default HTTP port 8080")
	}

	configPath = os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}

	return ip, sipPort, httpPort, configPath
}
