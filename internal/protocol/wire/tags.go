package wire

// Request tags. All tags are exactly three ASCII characters; on TCP the tag
// is followed by a single space, so the fixed request header is four bytes.
const (
	TagRegister    = "REG"
	TagUnregister  = "UNR"
	TagLogin       = "LOG"
	TagLogout      = "OUT"
	TagGroups      = "GLS"
	TagSubscribe   = "GSR"
	TagUnsubscribe = "GUR"
	TagMyGroups    = "GLM"
	TagUserList    = "ULS"
	TagPost        = "PST"
	TagRetrieve    = "RTV"
)

// Reply tags, paired with the request tags above.
const (
	ReplyRegister    = "RRG"
	ReplyUnregister  = "RUN"
	ReplyLogin       = "RLO"
	ReplyLogout      = "ROU"
	ReplyGroups      = "RGL"
	ReplySubscribe   = "RGS"
	ReplyUnsubscribe = "RGU"
	ReplyMyGroups    = "RGM"
	ReplyUserList    = "RUL"
	ReplyPost        = "RPT"
	ReplyRetrieve    = "RRT"
)

// Status tokens.
const (
	StatusOK     = "OK"
	StatusNOK    = "NOK"
	StatusDUP    = "DUP"
	StatusNEW    = "NEW"
	StatusEOF    = "EOF"
	StatusErr    = "ERR"
	StatusEUser  = "E_USR"
	StatusEGroup = "E_GRP"
	StatusEGName = "E_GNAME"
	StatusEFull  = "E_FULL"
)

// Field and frame size limits.
const (
	MaxUID    = 5
	MaxPass   = 8
	MaxGID    = 2
	MaxGName  = 24
	MaxMID    = 4
	MaxFname  = 24
	MaxFsize  = 10
	MaxTsize  = 3
	MaxText   = 240
	MaxGroups = 99

	// TCPHeaderLen is the fixed TCP request header: 3-char tag plus one space.
	TCPHeaderLen = 4

	// MaxRequestUDP bounds a UDP request datagram.
	MaxRequestUDP = 128

	// MaxReplyUDP bounds a UDP reply datagram (RGL with 99 groups fits).
	MaxReplyUDP = 4096
)
