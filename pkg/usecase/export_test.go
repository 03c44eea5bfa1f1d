package usecase

// Render is exported for testing
var Render = render
