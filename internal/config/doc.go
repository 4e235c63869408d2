// Package config загружает конфигурацию процессов ModuleTrack.
//
// Порядок применения:
//  1. значения по умолчанию (Default)
//  2. YAML-файл из MODULETRACK_CONFIG
//  3. переменные окружения (DB_URL, RABBITMQ_URL, REDIS_URL, API_PORT, LOG_LEVEL, ...)
//
// Пример файла:
//
//	log_level: debug
//	database:
//	  url: postgresql://moduletrack:moduletrack@db:5432/moduletrack
//	redis:
//	  url: redis://redis:6379/0
//	sweeper:
//	  cron: "*/5 * * * *"
//	  abandon_after: 8h
package config
