package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/gateway"
	"iazeconnect/internal/logger"
)

// session-qr pede um QR novo para a instância e o desenha no terminal
func main() {
	instance := flag.String("instance", "", "nome da instância na Evolution API")
	apiKey := flag.String("apikey", "", "apikey da instância (padrão: EVOLUTION_API_KEY)")
	flag.Parse()

	if *instance == "" {
		fmt.Fprintln(os.Stderr, "uso: session-qr -instance <nome>")
		os.Exit(2)
	}

	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("Arquivo .env não encontrado, usando variáveis do sistema")
	}

	cfg := config.Load()
	zapLogger, err := logger.Init(cfg)
	if err != nil {
		log.Fatal("Falha ao configurar logger:", err)
	}
	defer zapLogger.Sync()

	client := gateway.NewEvolutionClient(gateway.EvolutionOptions{
		BaseURL:       cfg.EvolutionAPIURL,
		APIKey:        cfg.EvolutionAPIKey,
		Timeout:       cfg.GatewayTimeout,
		CreateTimeout: cfg.GatewayCreateTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content, err := client.PairingCode(ctx, gateway.Instance{Name: *instance, APIKey: *apiKey})
	if err != nil {
		zap.L().Fatal("Falha ao obter QR", zap.String("instance", *instance), zap.Error(err))
	}

	qrterminal.GenerateWithConfig(content, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	fmt.Printf("Escaneie o QR acima no WhatsApp para conectar %s\n", *instance)
}
