package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"BlockPay/sdk/go/blockpay"
)

func main() {
	baseURL := os.Getenv("BLOCKPAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := blockpay.NewClient(baseURL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	address, err := client.Wallet(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent wallet %s\n", address)

	balance, err := client.Balance(ctx, address)
	if err != nil {
		panic(err)
	}
	fmt.Printf("balance %s %s\n", balance.Formatted, balance.Symbol)

	reply, err := client.Ask(ctx, "What is the current ETH price?", address)
	if err != nil {
		panic(err)
	}
	fmt.Println(reply.Reply)
}
