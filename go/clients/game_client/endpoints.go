package game_client

const (
	// API Endpoints
	APIPrefix      = "/api"
	GamesEndpoint  = APIPrefix + "/games"
	ConfigEndpoint = APIPrefix + "/config"

	// Game sub-resources
	ActionPath = "/action"
	LeavePath  = "/leave"
	EndPath    = "/end"
	StartPath  = "/start"

	// Credentials
	SessionCookieName   = "session"
	AuthorizationHeader = "Authorization"
)
