package session

// Phase is the connection state of a Machine.
type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseAuthenticating
	PhaseResolvingDefaultDevice
	PhaseLoadingDevices
	PhaseTransportConnecting
	PhaseConnected
)

var phaseNames = [...]string{
	PhaseDisconnected:           "disconnected",
	PhaseAuthenticating:         "authenticating",
	PhaseResolvingDefaultDevice: "resolving_default_device",
	PhaseLoadingDevices:         "loading_devices",
	PhaseTransportConnecting:    "transport_connecting",
	PhaseConnected:              "connected",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}
