package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sciforge/toolbridge/engine"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/schema"
	"github.com/sciforge/toolbridge/server"
)

// builtinCatalog returns the scientific-database tools the bridge ships
// with. Every handler is a thin HTTP client over a public REST API; the
// bridge does validation, pooling, timeouts and post-processing around them.
func builtinCatalog(client *http.Client, openaiKey string) []server.Tool {
	tools := []server.Tool{
		{
			Descriptor: protocol.ToolDescriptor{
				Name:        "pdb_structure_lookup",
				Description: "Fetch the core entry record for a protein structure from the RCSB Protein Data Bank by its 4-character PDB ID.",
				Category:    "structural-biology",
				Kind:        "database-query",
				Parameters: &protocol.ParameterSchema{
					Type: "object",
					Properties: map[string]*protocol.ParameterSpec{
						"id": {
							Type:        protocol.TypeString,
							Description: "4-character PDB entry ID, e.g. 1TUP",
							Required:    true,
						},
					},
				},
				ReturnKind: "json",
			},
			Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
				id, _ := stringArg(args, "id")
				target := "https://data.rcsb.org/rest/v1/core/entry/" + url.PathEscape(strings.ToUpper(id))
				return fetchJSON(ctx, client, target)
			},
		},
		{
			Descriptor: protocol.ToolDescriptor{
				Name:        "uniprot_protein_lookup",
				Description: "Fetch a protein record from UniProtKB by accession number.",
				Category:    "structural-biology",
				Kind:        "database-query",
				Parameters: &protocol.ParameterSchema{
					Type: "object",
					Properties: map[string]*protocol.ParameterSpec{
						"accession": {
							Type:        protocol.TypeString,
							Description: "UniProt accession, e.g. P04637",
							Required:    true,
						},
					},
				},
				ReturnKind: "json",
			},
			Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
				accession, _ := stringArg(args, "accession")
				target := "https://rest.uniprot.org/uniprotkb/" + url.PathEscape(accession) + ".json"
				return fetchJSON(ctx, client, target)
			},
		},
		{
			Descriptor: protocol.ToolDescriptor{
				Name:        "pubmed_search",
				Description: "Search PubMed for literature matching a query and return the matching article IDs.",
				Category:    "literature",
				Kind:        "database-query",
				Parameters: &protocol.ParameterSchema{
					Type: "object",
					Properties: map[string]*protocol.ParameterSpec{
						"query": {
							Type:        protocol.TypeString,
							Description: "PubMed query string",
							Required:    true,
						},
						"max_results": {
							Type:        protocol.TypeInteger,
							Description: "Maximum number of article IDs to return",
							Default:     10,
						},
					},
				},
				ReturnKind: "json",
			},
			Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
				query, _ := stringArg(args, "query")
				max := intArg(args, "max_results", 10)
				params := url.Values{
					"db":      {"pubmed"},
					"term":    {query},
					"retmax":  {fmt.Sprintf("%d", max)},
					"retmode": {"json"},
				}
				target := "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi?" + params.Encode()
				return fetchJSON(ctx, client, target)
			},
		},
		{
			Descriptor: protocol.ToolDescriptor{
				Name:        "pubchem_compound_lookup",
				Description: "Fetch compound properties from PubChem by name or by numeric compound ID (CID).",
				Category:    "chemistry",
				Kind:        "database-query",
				Parameters: &protocol.ParameterSchema{
					Type: "object",
					Properties: map[string]*protocol.ParameterSpec{
						"identifier": {
							Description: "Compound name or numeric CID",
							Required:    true,
							OneOf: []*protocol.ParameterSpec{
								{Type: protocol.TypeString, Description: "compound name"},
								{Type: protocol.TypeInteger, Description: "PubChem CID"},
							},
						},
					},
				},
				ReturnKind: "json",
			},
			Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
				var target string
				switch v := args["identifier"].(type) {
				case string:
					target = "https://pubchem.ncbi.nlm.nih.gov/rest/pug/compound/name/" +
						url.PathEscape(v) + "/property/MolecularFormula,MolecularWeight,CanonicalSMILES/JSON"
				case float64: // JSON numbers decode as float64
					target = fmt.Sprintf(
						"https://pubchem.ncbi.nlm.nih.gov/rest/pug/compound/cid/%d/property/MolecularFormula,MolecularWeight,CanonicalSMILES/JSON", int64(v))
				default:
					target = fmt.Sprintf(
						"https://pubchem.ncbi.nlm.nih.gov/rest/pug/compound/cid/%v/property/MolecularFormula,MolecularWeight,CanonicalSMILES/JSON", v)
				}
				return fetchJSON(ctx, client, target)
			},
		},
		{
			Descriptor: protocol.ToolDescriptor{
				Name:        "ensembl_gene_lookup",
				Description: "Fetch gene metadata from the Ensembl REST API by gene symbol.",
				Category:    "genomics",
				Kind:        "database-query",
				Parameters: &protocol.ParameterSchema{
					Type: "object",
					Properties: map[string]*protocol.ParameterSpec{
						"symbol": {
							Type:        protocol.TypeString,
							Description: "Gene symbol, e.g. BRCA2",
							Required:    true,
						},
						"species": {
							Type:        protocol.TypeString,
							Description: "Species name",
							Default:     "homo_sapiens",
						},
					},
				},
				ReturnKind: "json",
			},
			Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
				symbol, _ := stringArg(args, "symbol")
				species, ok := stringArg(args, "species")
				if !ok {
					species = "homo_sapiens"
				}
				target := fmt.Sprintf(
					"https://rest.ensembl.org/lookup/symbol/%s/%s?content-type=application/json",
					url.PathEscape(species), url.PathEscape(symbol))
				return fetchJSON(ctx, client, target)
			},
		},
	}

	if openaiKey != "" {
		tools = append(tools, summarizerTool(openaiKey))
	}
	return tools
}

// summarizerTool backs the summarize hook rules with a language model.
func summarizerTool(apiKey string) server.Tool {
	client := openai.NewClient(apiKey)
	return server.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:        "summarize_text",
			Description: "Summarize a block of text into a short synopsis.",
			Category:    "utility",
			Kind:        "language-model",
			Parameters: &protocol.ParameterSchema{
				Type: "object",
				Properties: map[string]*protocol.ParameterSpec{
					"text": {
						Type:        protocol.TypeString,
						Description: "Text to summarize",
						Required:    true,
					},
					"instructions": {
						Type:        protocol.TypeString,
						Description: "Optional extra guidance for the summary",
					},
				},
			},
			ReturnKind: "text",
		},
		Handler: func(ctx context.Context, args map[string]interface{}, emit engine.StreamSink) (engine.Output, error) {
			text, _ := stringArg(args, "text")
			system := "Summarize the user's content concisely. Preserve identifiers, quantities and units."
			if extra, ok := stringArg(args, "instructions"); ok && extra != "" {
				system += " " + extra
			}
			resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: openai.GPT4oMini,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: system},
					{Role: openai.ChatMessageRoleUser, Content: text},
				},
			})
			if err != nil {
				return engine.Output{}, fmt.Errorf("summarization request: %w", err)
			}
			if len(resp.Choices) == 0 {
				return engine.Output{}, fmt.Errorf("summarization returned no choices")
			}
			return engine.Text(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
		},
	}
}

// fetchJSON issues one GET and hands the response body back as serialized
// output. Non-2xx statuses become handler errors so the engine reports them
// as execution failures.
func fetchJSON(ctx context.Context, client *http.Client, target string) (engine.Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return engine.Output{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return engine.Output{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return engine.Output{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return engine.Output{}, fmt.Errorf("upstream returned %s", resp.Status)
	}
	return engine.AlreadySerialized(string(body)), nil
}

// stringArg reads a string argument, treating the absent sentinel as unset.
func stringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name]
	if !ok || schema.IsAbsent(v) {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg reads an integer argument that may arrive as a JSON float64.
func intArg(args map[string]interface{}, name string, fallback int) int {
	v, ok := args[name]
	if !ok || schema.IsAbsent(v) {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
