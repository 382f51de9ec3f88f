package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs from
// the UDP and TCP paths can be queried uniformly.
const (
	// Transport and client identification
	KeyTransport  = "transport"   // udp or tcp
	KeyClientIP   = "client_ip"   // client IP address
	KeyClientPort = "client_port" // client source port

	// Protocol fields
	KeyCommand = "command" // request tag: REG, LOG, GSR, PST, ...
	KeyStatus  = "status"  // reply status token: OK, NOK, DUP, E_USR, ...
	KeyUID     = "uid"     // user identifier carried by the request
	KeyGID     = "gid"     // group identifier carried by the request
	KeyMID     = "mid"     // message identifier
	KeyGName   = "gname"   // group name
	KeyFname   = "fname"   // attachment filename
	KeyTsize   = "tsize"   // declared text length in bytes
	KeyFsize   = "fsize"   // declared attachment length in bytes

	// Generic
	KeyError    = "error"
	KeyPath     = "path"
	KeyDuration = "duration_ms"
)
