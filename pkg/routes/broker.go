package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/keybrokerhq/keybroker/pkg/controllers"
	"github.com/keybrokerhq/keybroker/pkg/services"
)

func NewBrokerHTTPLayer(parentRouterGroup *gin.RouterGroup, svc services.BrokerService) {
	routes := controllers.NewBrokerHttpRoutes(svc)

	router := parentRouterGroup
	rv1 := router.Group("/v1")

	rv1.GET("/providers", routes.GetProviders)

	rv1.GET("/handles", routes.GetHandles)
	rv1.GET("/handles/:id", routes.GetHandleByID)
	rv1.POST("/handles", routes.CreateKeyHandle)
	rv1.POST("/handles/import", routes.ImportKeyHandle)
	rv1.DELETE("/handles/:id", routes.DestroyHandle)

	rv1.POST("/handles/:id/sign", routes.SignMessage)
	rv1.POST("/handles/:id/verify", routes.VerifySignature)
	rv1.POST("/handles/:id/encrypt", routes.EncryptMessage)
	rv1.POST("/handles/:id/decrypt", routes.DecryptMessage)
	rv1.GET("/handles/:id/public-key", routes.ExportPublicKey)
}
