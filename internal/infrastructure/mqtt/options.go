package mqtt

import (
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"math/big"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultSubscribeTimeout = 5 * time.Second
	defaultKeepAlive        = 60 * time.Second
	defaultWebSocketPath    = "/mqtt"
	defaultClientIDPrefix   = "nomiku-go"

	// disconnectQuiesce is how long Close waits for in-flight work (ms).
	disconnectQuiesce = 250

	// subscribeFailure is the SUBACK return code for a refused topic.
	subscribeFailure = 0x80

	tlsMinVersion = tls.VersionTLS12

	clientIDSuffixLen = 8
	clientIDAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// brokerURL renders the broker address for paho, e.g.
// "wss://mq.nomiku.com:443/mqtt" or "tcp://localhost:1883".
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := strings.ToLower(b.Transport)
	if scheme == "" {
		scheme = "tcp"
	}
	if scheme != "ws" && scheme != "wss" {
		return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
	}

	path := b.Path
	if path == "" {
		path = defaultWebSocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, b.Host, b.Port, path)
}

func usesTLS(transport string) bool {
	t := strings.ToLower(transport)
	return t == "ssl" || t == "wss" || t == "tls" || t == "mqtts"
}

// buildClientOptions creates paho options for one connection attempt.
//
// Paho's own reconnect logic is disabled: the session decides when and how
// often to retry, so a lost connection must surface instead of being hidden.
func buildClientOptions(cfg config.MQTTConfig, clientID, userName, password string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(clientID)

	if userName != "" {
		opts.SetUsername(userName)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(connectTimeout(cfg))

	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)

	if usesTLS(cfg.Broker.Transport) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: cfg.Broker.Host,
		})
	}

	return opts
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return time.Duration(cfg.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}

// newClientID returns "<prefix>/<random>". The broker drops an older
// session when a new one connects with the same id, so each process
// needs its own.
func newClientID(prefix string) string {
	if prefix == "" {
		prefix = defaultClientIDPrefix
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('/')
	max := big.NewInt(int64(len(clientIDAlphabet)))
	for range clientIDSuffixLen {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			sb.WriteByte('0')
			continue
		}
		sb.WriteByte(clientIDAlphabet[n.Int64()])
	}
	return sb.String()
}
