package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Console   ConsoleConfig   `mapstructure:"console"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Collector CollectorConfig `mapstructure:"collector"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера коллектора (Data Plane).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsPort  int           `mapstructure:"metrics_port"`
}

// ConsoleConfig описывает настройки HTTP-сервера ревью-консоли (Control Plane).
type ConsoleConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// CollectorConfig содержит специфичные настройки ingest-плоскости.
type CollectorConfig struct {
	MediaDir           string        `mapstructure:"media_dir"`
	EventBufferSize    int           `mapstructure:"event_buffer_size"`
	EventBatchSize     int           `mapstructure:"event_batch_size"`
	EventFlushInterval time.Duration `mapstructure:"event_flush_interval"`

	// Порог автоматического флага: N нарушений за окно
	FlagWindow    time.Duration `mapstructure:"flag_window"`
	FlagThreshold int           `mapstructure:"flag_threshold"`

	// Защита от снапшот-флуда: минимальный интервал на одну попытку
	SnapshotMinInterval time.Duration `mapstructure:"snapshot_min_interval"`
	MaxUploadBytes      int64         `mapstructure:"max_upload_bytes"`

	// Пересжатие кадров перед записью на диск
	MaxImageWidth  int `mapstructure:"max_image_width"`
	MaxImageHeight int `mapstructure:"max_image_height"`
	JPEGQuality    int `mapstructure:"jpeg_quality"`
}

// AgentConfig содержит настройки клиентского движка прокторинга.
type AgentConfig struct {
	CollectorURL string `mapstructure:"collector_url"`
	IPLookupURL  string `mapstructure:"ip_lookup_url"`

	EventBufferSize int           `mapstructure:"event_buffer_size"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"` // Дедлайн POST при дисквалификации

	SnapshotInterval     time.Duration `mapstructure:"snapshot_interval"`
	DevtoolsPollInterval time.Duration `mapstructure:"devtools_poll_interval"`
	ScreenshotCooldown   time.Duration `mapstructure:"screenshot_cooldown"` // Не чаще, per категория
	SettleDelay          time.Duration `mapstructure:"settle_delay"`        // Пауза перед кадром, чтобы UI дорисовался

	AwayWarning     time.Duration  `mapstructure:"away_warning"`     // Дольше — warning вместо info
	CategoryLimits  map[string]int `mapstructure:"category_limits"`  // Дисквалифицирующие категории и их пороги
	RestoreAttempts uint           `mapstructure:"restore_attempts"` // Попытки вернуть fullscreen
	ScreenshotEvery int            `mapstructure:"screenshot_every"` // Кадр на каждую N-ю попытку copy/paste/...

	// Эвристики детекта DevTools
	DevtoolsSizeDelta int           `mapstructure:"devtools_size_delta"`
	DevtoolsTimingMin time.Duration `mapstructure:"devtools_timing_min"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("console.port", 8000)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("collector.media_dir", "./media/snapshots")
	v.SetDefault("collector.event_buffer_size", 10000)
	v.SetDefault("collector.event_batch_size", 100)
	v.SetDefault("collector.event_flush_interval", 1*time.Second)
	v.SetDefault("collector.flag_window", 10*time.Minute)
	v.SetDefault("collector.flag_threshold", 5)
	v.SetDefault("collector.snapshot_min_interval", 2*time.Second)
	v.SetDefault("collector.max_upload_bytes", int64(10<<20))
	v.SetDefault("collector.max_image_width", 640)
	v.SetDefault("collector.max_image_height", 480)
	v.SetDefault("collector.jpeg_quality", 70)

	v.SetDefault("agent.collector_url", "http://localhost:8080")
	v.SetDefault("agent.ip_lookup_url", "https://api.ipify.org?format=json")
	v.SetDefault("agent.event_buffer_size", 1000)
	v.SetDefault("agent.submit_timeout", 3*time.Second)
	v.SetDefault("agent.snapshot_interval", 30*time.Second)
	v.SetDefault("agent.devtools_poll_interval", 1*time.Second)
	v.SetDefault("agent.screenshot_cooldown", 2*time.Second)
	v.SetDefault("agent.settle_delay", 100*time.Millisecond)
	v.SetDefault("agent.away_warning", 30*time.Second)
	v.SetDefault("agent.category_limits", map[string]int{"fullscreen_exit": 3})
	v.SetDefault("agent.restore_attempts", 3)
	v.SetDefault("agent.screenshot_every", 3)
	v.SetDefault("agent.devtools_size_delta", 160)
	v.SetDefault("agent.devtools_timing_min", 120*time.Millisecond)
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
