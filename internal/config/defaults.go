package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/pricebook.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Catalog.ForeignPriceList == "" {
		cfg.Catalog.ForeignPriceList = "./data/price_list.xlsx"
	}
	if cfg.Catalog.LocalPriceList == "" {
		cfg.Catalog.LocalPriceList = "./data/local_items.xlsx"
	}
	if cfg.Catalog.ClientsFile == "" {
		cfg.Catalog.ClientsFile = "./data/clients.csv"
	}
	if cfg.Catalog.MarkupRate == 0 {
		cfg.Catalog.MarkupRate = 0.08
	}
	if cfg.Catalog.PriceColumn == "" {
		cfg.Catalog.PriceColumn = "po_price"
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 500
	}
	if cfg.Search.ClientTopK == 0 {
		cfg.Search.ClientTopK = 5
	}
	if cfg.Match.TopK == 0 {
		cfg.Match.TopK = 5
	}
	if cfg.Match.Threshold == 0 {
		cfg.Match.Threshold = 1.0
	}
	if cfg.Match.MinDescriptionLen == 0 {
		cfg.Match.MinDescriptionLen = 5
	}
	if cfg.Match.HeaderScanRows == 0 {
		cfg.Match.HeaderScanRows = 20
	}
}
