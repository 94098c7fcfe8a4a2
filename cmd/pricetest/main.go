package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"bitmex_orderbook/internal/book"
	"bitmex_orderbook/internal/infra"
)

// pricetest fetches an instrument and shows how prices and level ids land on the ladder.
func main() {
	restURL := flag.String("rest", "https://www.bitmex.com", "BitMEX REST base URL")
	symbol := flag.String("symbol", "XBTUSD", "instrument symbol")
	flag.Parse()

	fmt.Println("=== BitMEX Price Index Inspector ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inst, err := infra.NewInstrumentClient(*restURL).Fetch(ctx, *symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ instrument fetch failed: %v\n", err)
		os.Exit(1)
	}

	index, err := book.NewPriceIndex(book.IndexParams{MaxPrice: inst.MaxPrice, Granularity: inst.TickSize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("📊 %s\n", inst.Symbol)
	fmt.Printf("   tickSize: %s\n", inst.TickSize)
	fmt.Printf("   maxPrice: %s\n", inst.MaxPrice)
	fmt.Printf("   levels:   %d per side\n", index.Levels())
	fmt.Println()

	// remaining args are prices or level ids
	for _, arg := range flag.Args() {
		if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 1_000_000_000 {
			price, err := index.PriceFromID(id)
			if err != nil {
				fmt.Printf("🔎 id %d → %v\n", id, err)
				continue
			}
			fmt.Printf("🔎 id %d → price %v", id, price)
			if i, err := index.ToIndex(price); err == nil {
				fmt.Printf(" → index %d\n", i)
			} else {
				fmt.Printf(" → %v\n", err)
			}
			continue
		}

		price, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fmt.Printf("⚠️  %q is neither a price nor an id\n", arg)
			continue
		}
		i, err := index.ToIndex(price)
		if err != nil {
			fmt.Printf("🔎 price %v → %v\n", price, err)
			continue
		}
		id, err := index.IDFromPrice(price)
		if err != nil {
			fmt.Printf("🔎 price %v → index %d (slot price %v, no id: %v)\n", price, i, index.PriceAt(i), err)
			continue
		}
		fmt.Printf("🔎 price %v → index %d (slot price %v, id %d)\n", price, i, index.PriceAt(i), id)
	}
}
