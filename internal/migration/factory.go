package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/roundtable/config"
)

// NewMigratorFromDatabaseConfig 由 database 配置段创建迁移器。
// driver 为 sqlite 时返回 ErrSQLiteAutoMigrate。
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*SchemaMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		return nil, ErrSQLiteAutoMigrate
	}

	sslMode := dbCfg.SSLMode
	if dbType != DatabaseTypePostgres {
		sslMode = ""
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, sslMode),
		Logger:       logger,
	})
}

// NewMigratorFromURL 由显式的方言名与连接 URL 创建迁移器
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*SchemaMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		Logger:       logger,
	})
}
