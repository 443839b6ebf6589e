package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/ready", s.readinessCheck)
	s.echo.GET("/health/live", s.livenessCheck)
	s.echo.GET("/health/checks/:name", s.singleHealthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	storage := api.Group("/storage")
	storage.GET("", s.listStorageProviders)

	containers := storage.Group("/:provider/containers/:container", s.middleware.RateLimit.Handler())
	containers.PUT("", s.createContainer)
	containers.GET("", s.getContainerProperties)
	containers.DELETE("", s.deleteContainer)
	containers.DELETE("/blobs", s.deleteBlobs)
	containers.PUT("/blobs/*", s.putBlob)
	containers.GET("/blobs/*", s.getBlob)
	containers.HEAD("/blobs/*", s.blobExists)
	containers.DELETE("/blobs/*", s.deleteBlob)
}
