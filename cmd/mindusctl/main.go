package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Token     string
	TableID   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) rowsPath() string {
	return "/api/database/rows/table/" + c.TableID + "/"
}

func (c *client) do(method, path string) (int, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Token "+c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

type row struct {
	ID          int64  `json:"id"`
	Platform    string `json:"platform"`
	PlatformID  string `json:"platform_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	LastLoginAt string `json:"last_login_at"`
}

type rowList struct {
	Count   int   `json:"count"`
	Results []row `json:"results"`
}

func main() {
	_ = godotenv.Load()

	var (
		baseURL = envOr("PROFILE_STORE_URL", "http://localhost:8000")
		token   = envOr("PROFILE_STORE_TOKEN", "")
		tableID = envOr("PROFILE_STORE_TABLE_ID", "")
		out     = envOr("MINDUSCTL_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "mindusctl",
		Short: "CLI admin para el profile store de Mindus",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("falta token (flag --store-token o env PROFILE_STORE_TOKEN)")
			}
			if tableID == "" {
				return fmt.Errorf("falta table id (flag --table-id o env PROFILE_STORE_TABLE_ID)")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "store-url", baseURL, "URL base del profile store (env PROFILE_STORE_URL)")
	root.PersistentFlags().StringVar(&token, "store-token", token, "Token del profile store (env PROFILE_STORE_TOKEN)")
	root.PersistentFlags().StringVar(&tableID, "table-id", tableID, "ID de la tabla de perfiles (env PROFILE_STORE_TABLE_ID)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	cobra.OnInitialize(func() {
		cl.BaseURL = baseURL
		cl.Token = token
		cl.TableID = tableID
		cl.OutFormat = out
	})

	// ping: lista con size=1 para validar credenciales
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping al profile store (valida token y tabla)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", cl.rowsPath()+"?user_field_names=true&size=1")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ping fallo: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, []byte(`{"ok":true}`))
			return nil
		},
	}

	usersCmd := &cobra.Command{Use: "users", Short: "Operaciones sobre perfiles de usuario"}

	var listPlatform string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar perfiles (opcionalmente por plataforma)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("user_field_names", "true")
			if listPlatform != "" {
				q.Set("filter__platform__equal", listPlatform)
			}
			status, body, err := cl.do("GET", cl.rowsPath()+"?"+q.Encode())
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("list fallo: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "json" {
				cl.print(status, body)
				return nil
			}
			var list rowList
			if err := json.Unmarshal(body, &list); err != nil {
				return err
			}
			for _, r := range list.Results {
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n", r.ID, r.Platform, r.Username, r.Email, r.LastLoginAt)
			}
			fmt.Printf("total=%d\n", list.Count)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listPlatform, "platform", "", "Filtrar por plataforma (github|gitlab|bitbucket)")

	var getPlatform, getID string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Buscar un perfil por plataforma e id externo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if getPlatform == "" {
				return fmt.Errorf("--platform es requerido")
			}
			if getID == "" {
				return fmt.Errorf("--id es requerido")
			}
			q := url.Values{}
			q.Set("user_field_names", "true")
			q.Set("filter__platform__equal", getPlatform)
			q.Set("filter__platform_id__equal", getID)
			status, body, err := cl.do("GET", cl.rowsPath()+"?"+q.Encode())
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("get fallo: status=%d body=%s", status, string(body))
			}
			var list rowList
			if err := json.Unmarshal(body, &list); err != nil {
				return err
			}
			if len(list.Results) == 0 {
				return fmt.Errorf("no encontrado: platform=%s id=%s", getPlatform, getID)
			}
			b, _ := json.MarshalIndent(list.Results[0], "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
	getCmd.Flags().StringVar(&getPlatform, "platform", "", "Plataforma (github|gitlab|bitbucket)")
	getCmd.Flags().StringVar(&getID, "id", "", "ID externo del usuario en la plataforma")

	usersCmd.AddCommand(listCmd)
	usersCmd.AddCommand(getCmd)
	root.AddCommand(pingCmd)
	root.AddCommand(usersCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
