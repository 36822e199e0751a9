package main

import (
	"flag"
	"io"

	"github.com/golang/glog"
	"github.com/spf13/afero"

	"github.com/robotalks/canlog/pkg/canbus"
	"github.com/robotalks/canlog/pkg/console"
	fx "github.com/robotalks/canlog/pkg/framework"
	"github.com/robotalks/canlog/pkg/node"
	"github.com/robotalks/canlog/pkg/sim"
	"github.com/robotalks/canlog/pkg/telemetry/mqtt"
	"github.com/robotalks/canlog/pkg/webapi"
)

var (
	configFile  string
	interactive bool
)

func init() {
	node.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file, flags take precedence")
	flag.BoolVar(&interactive, "console", interactive, "Serve the command console on stdin")
}

func openBus(conf *node.Config) (canbus.Bus, []fx.Runnable, io.Closer, error) {
	if conf.Interface != node.SimInterface {
		bus, err := canbus.DialSocketCAN(conf.Interface)
		return bus, nil, bus, err
	}
	lb := canbus.NewLoopbackBus()
	return lb.Open(), []fx.Runnable{sim.New(lb.Open())}, lb, nil
}

func main() {
	flag.Parse()
	if configFile != "" {
		if err := node.Default().LoadFile(configFile); err != nil {
			glog.Exit(err)
		}
		flag.Parse()
	}
	defer glog.Flush()

	conf := node.NewConfig()
	if err := node.SetDebugLevel(conf.Debug); err != nil {
		glog.Exit(err)
	}
	bus, extra, closer, err := openBus(conf)
	if err != nil {
		glog.Exitf("open %s: %v", conf.Interface, err)
	}
	defer closer.Close()

	n, err := conf.NewNode(bus, afero.NewOsFs())
	if err != nil {
		glog.Exit(err)
	}
	exec := console.NewExecutor(n)
	glog.Infof("node %s on %s, mode %s", n.ID, conf.Interface, n.Mode())

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("node", fx.RunFunc(n.Run)))
	runner.Go(extra...)
	if conf.HTTPAddr != "" {
		runner.Go(webapi.NewServer(conf.HTTPAddr, n, exec))
	}
	if conf.MQTTBrokerURL != "" {
		pub, err := mqtt.NewPublisher(conf.MQTTBrokerURL, n.ID, n, exec)
		if err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		runner.Go(pub)
	}
	if interactive {
		runner.Go(console.NewShell(exec))
	}
	if err := runner.Wait(); err != nil {
		glog.Error(err)
	}
}
