package main

import (
	"github.com/gin-gonic/gin"
	catalogRepo "github.com/ridloal/e-commerce-order-engine/internal/catalog/repository"
	invRepo "github.com/ridloal/e-commerce-order-engine/internal/inventory/repository"
	invService "github.com/ridloal/e-commerce-order-engine/internal/inventory/service"
	"github.com/ridloal/e-commerce-order-engine/internal/order/api"
	orderRepo "github.com/ridloal/e-commerce-order-engine/internal/order/repository"
	orderService "github.com/ridloal/e-commerce-order-engine/internal/order/service"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/cache"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/config"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/database"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/events"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
	pricingService "github.com/ridloal/e-commerce-order-engine/internal/pricing/service"
)

func main() {
	dbCfg := config.LoadOrderDBConfig()
	serverCfg := config.LoadServerConfig("8084")
	pricingCfg := config.LoadPricingConfig()
	gatewayCfg := config.LoadPaymentGatewayConfig()
	brokerCfg := config.LoadBrokerConfig()
	cacheCfg := config.LoadCacheConfig()
	jobsCfg := config.LoadJobsConfig()

	logger.Info("Starting Order Engine...")

	db, err := database.Connect(dbCfg.DSN)
	if err != nil {
		logger.Error("Failed to connect to database", err, nil)
		return
	}
	defer db.Close()

	var publisher events.Publisher = events.NewNopPublisher()
	if len(brokerCfg.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokerCfg.Brokers)
		logger.Info("Publishing order events to Kafka brokers %v", brokerCfg.Brokers)
	}
	defer publisher.Close()

	var invalidator cache.Invalidator = cache.NewNopInvalidator()
	if cacheCfg.RedisAddr != "" {
		invalidator = cache.NewRedisInvalidator(cacheCfg.RedisAddr)
		logger.Info("Cache invalidation against Redis at %s", cacheCfg.RedisAddr)
	}

	catalogRepository := catalogRepo.NewPostgresCatalogRepository(db)
	inventoryRepository := invRepo.NewPostgresInventoryRepository(db)
	orderRepository := orderRepo.NewPostgresOrderRepository(db)

	ledger := invService.NewInventoryLedger(inventoryRepository)
	pricing := pricingService.NewPricingEngine(catalogRepository, pricingService.Config{
		TaxRate:               pricingCfg.TaxRate,
		ShippingFlatFee:       pricingCfg.ShippingFlatFee,
		FreeShippingThreshold: pricingCfg.FreeShippingThreshold,
	})
	gateway := orderService.NewHTTPPaymentGatewayClient(gatewayCfg.BaseURL, gatewayCfg.Timeout)

	ordService := orderService.NewOrderService(
		orderRepository, catalogRepository, ledger, pricing, gateway, publisher, invalidator, jobsCfg)
	ordService.StartJobs()
	defer ordService.StopJobs()

	orderHandler := api.NewOrderHandler(ordService)

	router := gin.Default()
	apiV1 := router.Group("/api/v1")
	orderHandler.RegisterRoutes(apiV1)

	logger.Info("Order Engine running on port %s", serverCfg.Port)
	if errSrv := router.Run(serverCfg.Port); errSrv != nil {
		logger.Error("Failed to run Order Engine server", errSrv, nil)
	}
}
