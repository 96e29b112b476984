// Command pretenderctl is an offline admin CLI driving the façade directly
// (spec §5) — standing in for the HTTP front-end this emulator deliberately
// leaves out of scope.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"

	"github.com/pretender-db/pretender/infrastructure/config"
	"github.com/pretender-db/pretender/infrastructure/di"
)

var rootCmd = &cobra.Command{
	Use:           "pretenderctl",
	Short:         "Operate a Pretender instance without an HTTP front-end",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	rootCmd.AddCommand(createTableCmd, describeTableCmd, listTablesCmd, deleteTableCmd, putItemCmd, getItemCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withContainer(fn func(ctx context.Context, c *di.Container) error) error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing container: %w", err)
	}
	defer container.Close()
	return fn(ctx, container)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var createTableCmd = &cobra.Command{
	Use:   "create-table [name] [hashKey] [sortKey]",
	Short: "Create a table with a hash key and optional sort key",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			keySchema := []ddbtypes.KeySchemaElement{
				{AttributeName: &args[1], KeyType: ddbtypes.KeyTypeHash},
			}
			if len(args) == 3 {
				keySchema = append(keySchema, ddbtypes.KeySchemaElement{AttributeName: &args[2], KeyType: ddbtypes.KeyTypeRange})
			}
			out, err := c.Facade.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: &args[0],
				KeySchema: keySchema,
			})
			if err != nil {
				return err
			}
			return printJSON(out.TableDescription)
		})
	},
}

var describeTableCmd = &cobra.Command{
	Use:   "describe-table [name]",
	Short: "Describe one table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			out, err := c.Facade.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &args[0]})
			if err != nil {
				return err
			}
			return printJSON(out.Table)
		})
	},
}

var listTablesCmd = &cobra.Command{
	Use:   "list-tables",
	Short: "List every table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			out, err := c.Facade.ListTables(ctx, &dynamodb.ListTablesInput{})
			if err != nil {
				return err
			}
			return printJSON(out.TableNames)
		})
	},
}

var deleteTableCmd = &cobra.Command{
	Use:   "delete-table [name]",
	Short: "Delete one table and every relation it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			out, err := c.Facade.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: &args[0]})
			if err != nil {
				return err
			}
			return printJSON(out.TableDescription)
		})
	},
}

var putItemCmd = &cobra.Command{
	Use:   "put-item [table] [itemJSON]",
	Short: "Put one item, given its attributes as DynamoDB JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			item, err := decodeItemJSON(args[1])
			if err != nil {
				return err
			}
			out, err := c.Facade.PutItem(ctx, &dynamodb.PutItemInput{TableName: &args[0], Item: item})
			if err != nil {
				return err
			}
			return printJSON(out.Attributes)
		})
	},
}

var getItemCmd = &cobra.Command{
	Use:   "get-item [table] [keyJSON]",
	Short: "Fetch one item by key, given as DynamoDB JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(ctx context.Context, c *di.Container) error {
			key, err := decodeItemJSON(args[1])
			if err != nil {
				return err
			}
			out, err := c.Facade.GetItem(ctx, &dynamodb.GetItemInput{TableName: &args[0], Key: key})
			if err != nil {
				return err
			}
			return printJSON(out.Item)
		})
	},
}

// decodeItemJSON parses the simplified {"attr": {"S": "value"}} shape into
// the real SDK's AttributeValue union.
func decodeItemJSON(raw string) (map[string]ddbtypes.AttributeValue, error) {
	var wire map[string]map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parsing item JSON: %w", err)
	}
	out := make(map[string]ddbtypes.AttributeValue, len(wire))
	for attrName, typed := range wire {
		for typeTag, value := range typed {
			av, err := decodeAttributeValue(typeTag, value)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", attrName, err)
			}
			out[attrName] = av
			break
		}
	}
	return out, nil
}

func decodeAttributeValue(typeTag string, value interface{}) (ddbtypes.AttributeValue, error) {
	switch typeTag {
	case "S":
		return &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("%v", value)}, nil
	case "N":
		return &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%v", value)}, nil
	case "BOOL":
		b, _ := value.(bool)
		return &ddbtypes.AttributeValueMemberBOOL{Value: b}, nil
	case "NULL":
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	default:
		return nil, fmt.Errorf("unsupported type tag %q on the CLI's simplified item JSON", typeTag)
	}
}
