package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/bbsboard/config"
	"github.com/cppla/bbsboard/controllers"
	"github.com/cppla/bbsboard/objectstore"
	"github.com/cppla/bbsboard/routes"
	"github.com/cppla/bbsboard/services"
	"github.com/cppla/bbsboard/store"
	"github.com/cppla/bbsboard/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	logger, err := utils.InitLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := config.InitDatabase(cfg, store.Models()...)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	var cache *utils.ListCache
	if cfg.ListCacheTTLSec > 0 {
		rc, err := utils.NewRedis(cfg)
		if err != nil {
			logger.Warn("redis unavailable, list cache disabled", zap.Error(err))
			_ = rc.Close()
		} else {
			cache = utils.NewListCache(rc, time.Duration(cfg.ListCacheTTLSec)*time.Second, logger)
		}
	}

	storage, err := newStorage(cfg)
	if err != nil {
		logger.Fatal("object storage init failed", zap.Error(err))
	}

	identity := services.NewIdentityExtractor(utils.NewJWTDecoder(cfg.JWTSecret), cfg.JWTUserClaim)
	uploader := services.NewUploader(storage, time.Duration(cfg.UploadTimeoutSec)*time.Second, cfg.UploadConcurrency, logger)
	var listCache services.ListCache
	if cache != nil {
		listCache = cache
	}
	boardService := services.NewBoardService(identity, store.NewBoardStore(db), uploader, listCache,
		services.BoardOptions{Bucket: cfg.StorageBucket, PathPrefix: cfg.BoardPathPrefix}, logger)
	boardController := controllers.NewBoardController(boardService, controllers.UploadLimits{
		MaxFiles:    cfg.MaxFilesPerPost,
		MaxFileSize: int64(cfg.MaxUploadSizeMB) << 20,
	}, logger)

	r := routes.SetupRouter(cfg, boardController, identity, logger)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func newStorage(cfg config.AppConfig) (objectstore.Storage, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "s3":
		return objectstore.NewS3(objectstore.S3Config{
			Endpoint:      cfg.StorageEndpoint,
			Region:        cfg.StorageRegion,
			AccessKey:     cfg.StorageAccessKey,
			SecretKey:     cfg.StorageSecretKey,
			PublicBaseURL: cfg.StoragePublicBaseURL,
		}), nil
	case "local":
		return objectstore.NewLocal(cfg.StorageLocalRoot, cfg.StoragePublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
