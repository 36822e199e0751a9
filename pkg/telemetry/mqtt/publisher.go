package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/canlog/pkg/node"
)

// StatusSource provides the node status.
type StatusSource interface {
	Status() node.Status
}

// Executor runs console command lines.
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// Meta is published retained on <id>/meta while the node is online.
type Meta struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// Reply is published on <id>/reply for every command.
type Reply struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Publisher publishes the node status periodically and executes commands
// received on <id>/cmd.
type Publisher struct {
	Queue    *Queue
	ID       string
	Source   StatusSource
	Executor Executor
	Interval time.Duration

	ctx context.Context
}

// NewPublisher connects to the broker at brokerURL as node id.
func NewPublisher(brokerURL, id string, src StatusSource, exec Executor) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	offline, _ := json.Marshal(&Meta{ID: id})
	opts.SetBinaryWill(topicPrefix+id+"/meta", offline, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("canlog:" + id)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		ID:       id,
		Source:   src,
		Executor: exec,
		Interval: time.Second,
	}
	p.Queue.OnConnect = func(*Queue) { p.publishMeta(true) }
	return p, nil
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "mqtt"
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.ctx = ctx
	if p.Executor != nil {
		p.Queue.Sub(p.ID+"/cmd", p.handleCommand)
	}
	if token := p.Queue.Connect(); token.Wait() && token.Error() != nil {
		glog.Warningf("mqtt: connect: %v", token.Error())
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.publishMeta(false).Wait()
			p.Queue.Close()
			return ctx.Err()
		case <-ticker.C:
			p.PublishStatus()
		}
	}
}

// PublishStatus publishes the current status on <id>/status.
func (p *Publisher) PublishStatus() {
	payload, err := json.Marshal(p.Source.Status())
	if err != nil {
		glog.Errorf("mqtt: encode status: %v", err)
		return
	}
	p.Queue.Pub(p.ID+"/status", payload)
}

func (p *Publisher) publishMeta(online bool) paho.Token {
	payload, _ := json.Marshal(&Meta{ID: p.ID, Online: online})
	return p.Queue.PubWith(p.ID+"/meta", payload, 1, true)
}

func (p *Publisher) handleCommand(_ string, payload []byte) {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	line := string(payload)
	reply := Reply{Command: line}
	out, err := p.Executor.Exec(ctx, line)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Output = out
	}
	glog.V(node.DebugInfo).Infof("mqtt: command %q: %v", line, err)
	data, _ := json.Marshal(&reply)
	p.Queue.Pub(p.ID+"/reply", data)
}
