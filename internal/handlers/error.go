package handlers

// ErrorResponse is the body echo renders for an *echo.HTTPError.
type ErrorResponse struct {
	Message string `json:"message"`
}
