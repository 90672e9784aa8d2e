package kephaslobby

import "errors"

// Client-issued commands.
const (
	CmdAskSession = "ask_session"
	CmdHello      = "hello"
	CmdPing       = "ping"
	CmdGameHost   = "game_host"
	CmdModVault   = "modvault"
	CmdSocial     = "social"
	CmdAvatar     = "avatar"
	CmdFAState    = "fa_state"
	CmdLadderMaps = "ladder_maps"
)

// Server-issued commands.
const (
	CmdWelcome      = "welcome"
	CmdNotice       = "notice"
	CmdPong         = "pong"
	CmdGameInfo     = "game_info"
	CmdModVaultInfo = "modvault_info"
	CmdAvatarList   = "avatar"
	CmdAuthFailed   = "authentication_failed"
)

// modvault sub-commands, keyed by "type".
const (
	ModVaultStart      = "start"
	ModVaultLike       = "like"
	ModVaultDownload   = "download"
	ModVaultAddComment = "addcomment"
)

// avatar sub-commands, keyed by "action".
const (
	AvatarUpload = "upload_avatar"
	AvatarList   = "list_avatar"
	AvatarSelect = "select"
)

// Notice styles.
const (
	StyleInfo  = "info"
	StyleError = "error"
)

// Notice texts
const (
	TextNonASCIIGameName = "Non-ascii characters in game name detected."
	TextAvatarUploaded   = "Avatar uploaded."
	TextAvatarNotStored  = "Avatar not correctly uploaded."
	TextLoginFailed      = "Login or password incorrect."
	TextNotAuthenticated = "You must log in first."
	TextPermissionDenied = "You are not allowed to do that."
	TextRequestFailed    = "Request failed."
	TextAlreadyOnline    = "This account is already logged in."
)

// Command failures. Handlers wrap these with the offending key or value, so
// callers classify with errors.Is.
var (
	// ErrMissingField reports a required key absent from a command payload.
	ErrMissingField = errors.New("missing field")
	// ErrUnsupportedValue reports a key holding an unrecognized or ill-typed value.
	ErrUnsupportedValue = errors.New("unsupported value")
	// ErrNotImplemented reports a known sub-command that is intentionally not built.
	ErrNotImplemented = errors.New("not implemented")
	// ErrPermissionDenied reports a privileged command issued without privilege.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotAuthenticated reports a command issued before login.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCollaborator reports a registry or store failure.
	ErrCollaborator = errors.New("collaborator failure")
)
