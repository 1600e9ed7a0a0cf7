// Package sdk speaks the Claude CLI stream-json protocol.
//
// # Architecture
//
//   - transport: subprocess management (stdin/stdout/stderr, exit classification)
//   - Query: control protocol with request/response routing
//   - Client: long-lived interactive session
//   - QueryOnce: one-shot --print invocation
//
// # Interactive sessions
//
//	client := sdk.NewClient(sdk.ClientOptions{
//	    Transport: transport.Options{CliPath: path, Cwd: project},
//	})
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SendMessage("What files are in this directory?")
//	for msg := range client.Messages() {
//	    switch m := msg.(type) {
//	    case sdk.AssistantMessage:
//	        fmt.Println(sdk.GetTextContent(m))
//	    case sdk.ResultMessage:
//	        fmt.Println("cost:", sdk.FormatCost(m.TotalCostUSD))
//	    }
//	}
//
// Every parsed Message keeps the exact line the CLI printed (Raw), so callers
// can forward CLI output without re-encoding it.
package sdk
