package migration

import (
	"github.com/BaSui01/recipeflow/config"
	"go.uber.org/zap"
)

// NewMigratorFromDatabaseConfig 按审计库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, err
	}

	var url string
	switch dbType {
	case DatabaseTypeSQLite:
		url = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	default:
		url = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  url,
		Logger:       logger,
	})
}
